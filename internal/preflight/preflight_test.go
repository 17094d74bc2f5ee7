package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lightbox/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCommand(t *testing.T) {
	if result := CheckCommand(context.Background(), "shell", "sh"); !result.Passed {
		t.Fatalf("expected sh on PATH, got: %s", result.Detail)
	}
	if result := CheckCommand(context.Background(), "missing", "lightbox-no-such-binary"); result.Passed {
		t.Fatal("expected failure for missing binary")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Ingest.Enabled = false
	cfg.Capture.Command = nil

	results := RunAll(context.Background(), &cfg)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesOptionalChecks(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.CaptureDir = filepath.Join(t.TempDir(), "missing")
	cfg.Ingest.Enabled = true
	cfg.Capture.Command = []string{"sh", "-c", "true"}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Capture directory" {
		t.Fatalf("expected only the capture directory to fail, got %+v", failed)
	}
}

func TestProbeDevices(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "video4linux"), 0o755); err != nil {
		t.Fatal(err)
	}
	orig := sysClassRoot
	sysClassRoot = root
	t.Cleanup(func() { sysClassRoot = orig })

	cfg := config.Default()
	cfg.Devices.Enabled = false
	if p := ProbeDevices(&cfg); p.DeviceDetail() != "Disabled" {
		t.Fatalf("detail = %q", p.DeviceDetail())
	}

	cfg.Devices.Enabled = true
	cfg.Devices.Subsystem = "video4linux"
	if p := ProbeDevices(&cfg); !p.Present || p.DeviceDetail() != "Watching video4linux" {
		t.Fatalf("unexpected probe %+v", p)
	}

	cfg.Devices.Subsystem = "usb"
	if p := ProbeDevices(&cfg); p.Present {
		t.Fatalf("unexpected probe %+v", p)
	}
}

func TestCheckCaptureCommandFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Command = nil
	if r := CheckCaptureCommandFromConfig(&cfg); r.Detail != "Disabled" {
		t.Fatalf("detail = %q", r.Detail)
	}
	cfg.Capture.Command = []string{"camera-app", "--resume"}
	if r := CheckCaptureCommandFromConfig(&cfg); r.Detail != "camera-app --resume" {
		t.Fatalf("detail = %q", r.Detail)
	}
}
