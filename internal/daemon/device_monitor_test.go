package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"lightbox/internal/logging"
)

func TestNewDeviceMonitor(t *testing.T) {
	if m := newDeviceMonitor("  ", nil, nil); m != nil {
		t.Fatal("expected nil monitor for empty subsystem")
	}
	m := newDeviceMonitor("video4linux", logging.NewNop(), nil)
	if m == nil || m.subsystem != "video4linux" {
		t.Fatalf("unexpected monitor %+v", m)
	}
	if m.Running() {
		t.Fatal("unstarted monitor reports running")
	}
}

func TestDeviceMonitorNilSafety(t *testing.T) {
	var m *deviceMonitor
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor: %v", err)
	}
	m.Stop()
	if m.Running() {
		t.Fatal("nil monitor reports running")
	}
}

func TestDeviceMonitorStopUnstarted(t *testing.T) {
	m := newDeviceMonitor("video4linux", logging.NewNop(), nil)
	m.Stop()
	if m.Running() {
		t.Fatal("expected Running() false after Stop on unstarted monitor")
	}
}

func TestExtractDeviceName(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"devname absolute", map[string]string{"DEVNAME": "/dev/video0"}, "/dev/video0"},
		{"devname relative", map[string]string{"DEVNAME": "video2"}, "/dev/video2"},
		{"devpath", map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/video4linux/video1"}, "/dev/video1"},
		{"nothing", map[string]string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDeviceName(netlink.UEvent{Env: tt.env}); got != tt.want {
				t.Fatalf("extractDeviceName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleEventInvokesHandler(t *testing.T) {
	var gotDevice, gotAction string
	m := newDeviceMonitor("video4linux", logging.NewNop(), func(_ context.Context, device, action string) {
		gotDevice, gotAction = device, action
	})
	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVNAME": "/dev/video0", "SUBSYSTEM": "video4linux"},
	})
	if gotDevice != "/dev/video0" || gotAction != "add" {
		t.Fatalf("handler got %q %q", gotDevice, gotAction)
	}

	gotDevice = ""
	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})
	if gotDevice != "" {
		t.Fatal("handler invoked for event without a device")
	}
}

func TestBuildMatcherMatchesSubsystem(t *testing.T) {
	m := newDeviceMonitor("video4linux", logging.NewNop(), nil)
	matcher := m.buildMatcher()
	match := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "video4linux"}}
	if !matcher.Evaluate(match) {
		t.Fatal("expected video4linux add event to match")
	}
	other := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}
	if matcher.Evaluate(other) {
		t.Fatal("block event should not match")
	}
}
