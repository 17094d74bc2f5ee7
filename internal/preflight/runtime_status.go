package preflight

import (
	"fmt"
	"os"
	"strings"

	"lightbox/internal/config"
)

// CheckCaptureCommandFromConfig summarizes the resume command for status UIs.
func CheckCaptureCommandFromConfig(cfg *config.Config) Result {
	const name = "Capture resume"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if len(cfg.Capture.Command) == 0 {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(cfg.Capture.Command, " ")}
}

// DeviceProbe reports whether the udev subsystem used by the device monitor
// is present on this host.
type DeviceProbe struct {
	Enabled   bool
	Subsystem string
	Present   bool
}

// sysClassRoot is replaced in tests.
var sysClassRoot = "/sys/class"

// ProbeDevices inspects sysfs for the configured device subsystem.
func ProbeDevices(cfg *config.Config) DeviceProbe {
	if cfg == nil || !cfg.Devices.Enabled {
		return DeviceProbe{}
	}
	subsystem := strings.TrimSpace(cfg.Devices.Subsystem)
	probe := DeviceProbe{Enabled: true, Subsystem: subsystem}
	if subsystem == "" {
		return probe
	}
	if info, err := os.Stat(sysClassRoot + "/" + subsystem); err == nil && info.IsDir() {
		probe.Present = true
	}
	return probe
}

// DeviceDetail renders a display-friendly summary for status UIs.
func (p DeviceProbe) DeviceDetail() string {
	switch {
	case !p.Enabled:
		return "Disabled"
	case !p.Present:
		return fmt.Sprintf("No %s devices", p.Subsystem)
	default:
		return fmt.Sprintf("Watching %s", p.Subsystem)
	}
}
