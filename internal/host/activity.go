package host

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessProbe reports an artifact as active when a host process has it open.
type ProcessProbe struct {
	name      string
	processes func() ([]*process.Process, error)
}

// NewProcessProbe creates a probe matching processes by executable name.
func NewProcessProbe(name string) *ProcessProbe {
	return &ProcessProbe{name: name, processes: process.Processes}
}

// IsActive reports whether any matching process holds path open.
func (p *ProcessProbe) IsActive(title, path string) (bool, error) {
	procs, err := p.processes()
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}

	want := filepath.Clean(path)
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil || !sameProcessName(name, p.name) {
			continue
		}
		files, err := proc.OpenFiles()
		if err != nil {
			// Processes owned by other users cannot be inspected.
			continue
		}
		for _, f := range files {
			if samePath(filepath.Clean(f.Path), want) {
				return true, nil
			}
		}
	}
	return false, nil
}

func sameProcessName(a, b string) bool {
	a = strings.TrimSuffix(strings.ToLower(a), ".exe")
	b = strings.TrimSuffix(strings.ToLower(b), ".exe")
	return a == b
}

func samePath(a, b string) bool {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// AnyActive combines probes; the artifact is active when any probe says so.
type AnyActive []Prober

// IsActive returns the first positive answer or the first error.
func (f AnyActive) IsActive(title, path string) (bool, error) {
	for _, probe := range f {
		active, err := probe.IsActive(title, path)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
	}
	return false, nil
}
