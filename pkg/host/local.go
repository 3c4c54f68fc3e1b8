// Package host finds serial numbers when none are given on the command line:
// the local Mac's own serial, or serials read from devices over SNMP.
package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/nmasdoufi/warranty/pkg/inventory"
)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands on the local machine.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// LocalSerial returns this machine's hardware serial, trying system_profiler
// first and ioreg second.
func LocalSerial(ctx context.Context, run Runner) (string, error) {
	if run == nil {
		run = ExecRunner
	}
	var errs []error
	out, err := run(ctx, "system_profiler", "SPHardwareDataType")
	if err == nil {
		if s := ParseSystemProfiler(string(out)); s != "" {
			return s, nil
		}
		err = errors.New("no serial line in output")
	}
	errs = append(errs, fmt.Errorf("system_profiler: %w", err))

	out, err = run(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	if err == nil {
		if s := ParseIORegistry(string(out)); s != "" {
			return s, nil
		}
		err = errors.New("IOPlatformSerialNumber not found")
	}
	errs = append(errs, fmt.Errorf("ioreg: %w", err))
	return "", fmt.Errorf("local serial: %w", errors.Join(errs...))
}

// ParseSystemProfiler picks the fourth field of the first line mentioning
// "Serial" (ignoring tray serials) from `system_profiler SPHardwareDataType`.
func ParseSystemProfiler(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Serial") || strings.Contains(line, "tray") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			return inventory.NormalizeSerial(fields[3])
		}
	}
	return ""
}

// ParseIORegistry reads IOPlatformSerialNumber from `ioreg -rd1 -c IOPlatformExpertDevice`.
func ParseIORegistry(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "IOPlatformSerialNumber") {
			continue
		}
		_, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if s := strings.Trim(strings.TrimSpace(val), `"`); s != "" {
			return inventory.NormalizeSerial(s)
		}
	}
	return ""
}
