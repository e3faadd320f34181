// Package platform answers questions about the client machine: OS bitness and version,
// the host application's bitness, elevation and installed runtimes.
package platform

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/types"
)

// SystemProbe is the platform-compatibility boundary.
type SystemProbe interface {
	OSBitness() (types.Bitness, error)
	OS() (OSInfo, error)
	HostBitness() (types.Bitness, error)
	IsElevatedUser() (bool, error)
	InstalledRuntimes() ([]Runtime, error)
}

// OSInfo identifies the operating system.
type OSInfo struct {
	// Family is the GOOS-style name: windows, linux, darwin.
	Family string
	// Platform is the distribution or edition, e.g. ubuntu or Microsoft Windows 11 Pro.
	Platform string
	Version  manifest.Version
}

// Matches reports whether name refers to this OS. Win32NT is accepted for windows.
func (o OSInfo) Matches(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return true
	}
	if name == "win32nt" || name == "win32" {
		name = "windows"
	}
	return name == strings.ToLower(o.Family) || name == strings.ToLower(o.Platform)
}

// Runtime is an installed language runtime.
type Runtime struct {
	Name    string
	Version manifest.Version
}

// CommandRunner runs external commands.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

// Options configures a Probe.
type Options struct {
	// HostExecutable is the host application binary inspected for bitness.
	HostExecutable string
	// HostProcess is the host process name, used to find the executable when
	// HostExecutable is empty.
	HostProcess string
	Runner      CommandRunner
}

// Probe is the default SystemProbe. Every answer is computed once and reused.
type Probe struct {
	opts Options

	osBitness   func() (types.Bitness, error)
	osInfo      func() (OSInfo, error)
	hostBitness func() (types.Bitness, error)
	elevated    func() (bool, error)
	runtimes    func() ([]Runtime, error)
}

// NewProbe creates a memoizing probe.
func NewProbe(opts Options) *Probe {
	p := &Probe{opts: opts}
	p.osBitness = sync.OnceValues(probeOSBitness)
	p.osInfo = sync.OnceValues(probeOS)
	p.hostBitness = sync.OnceValues(p.probeHostBitness)
	p.elevated = sync.OnceValues(isElevated)
	p.runtimes = sync.OnceValues(p.probeRuntimes)
	return p
}

// OSBitness returns the kernel architecture's bitness.
func (p *Probe) OSBitness() (types.Bitness, error) { return p.osBitness() }

// OS returns the operating system identity.
func (p *Probe) OS() (OSInfo, error) { return p.osInfo() }

// HostBitness returns the host application's bitness, or BitnessUnknown when no
// executable is configured or found.
func (p *Probe) HostBitness() (types.Bitness, error) { return p.hostBitness() }

// IsElevatedUser reports whether the agent runs with administrative rights.
func (p *Probe) IsElevatedUser() (bool, error) { return p.elevated() }

// InstalledRuntimes lists runtimes found on the machine.
func (p *Probe) InstalledRuntimes() ([]Runtime, error) { return p.runtimes() }

func probeOSBitness() (types.Bitness, error) {
	arch, err := host.KernelArch()
	if err != nil || arch == "" {
		arch = runtime.GOARCH
	}
	b, err := types.ParseBitness(arch)
	if err != nil {
		return types.BitnessUnknown, fmt.Errorf("unrecognized kernel architecture %q", arch)
	}
	return b, nil
}

func probeOS() (OSInfo, error) {
	info, err := host.Info()
	if err != nil {
		return OSInfo{}, fmt.Errorf("failed to read host info: %w", err)
	}

	o := OSInfo{Family: info.OS, Platform: info.Platform}
	if v, err := parseLooseVersion(info.PlatformVersion); err == nil {
		o.Version = v
	} else {
		log.Debugf("unparseable platform version %q: %v", info.PlatformVersion, err)
	}
	return o, nil
}

func (p *Probe) probeHostBitness() (types.Bitness, error) {
	exe := p.opts.HostExecutable
	if exe == "" && p.opts.HostProcess != "" {
		exe = findProcessExecutable(p.opts.HostProcess)
	}
	if exe == "" {
		return types.BitnessUnknown, nil
	}
	return ExecutableBitness(exe)
}

func findProcessExecutable(name string) string {
	procs, err := process.Processes()
	if err != nil {
		log.Debugf("failed to list processes: %v", err)
		return ""
	}
	want := strings.TrimSuffix(strings.ToLower(name), ".exe")
	for _, proc := range procs {
		n, err := proc.Name()
		if err != nil || strings.TrimSuffix(strings.ToLower(n), ".exe") != want {
			continue
		}
		if exe, err := proc.Exe(); err == nil && exe != "" {
			return exe
		}
	}
	return ""
}

func (p *Probe) probeRuntimes() ([]Runtime, error) {
	runtimes := systemRuntimes()
	if p.opts.Runner != nil {
		runtimes = append(runtimes, dotnetRuntimes(p.opts.Runner)...)
	}
	return runtimes, nil
}

// parseLooseVersion parses the leading dotted number of strings like
// "10.0.22631 Build 22631" or "22.04".
func parseLooseVersion(s string) (manifest.Version, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return manifest.Version{}, fmt.Errorf("empty version")
	}
	return manifest.ParseVersion(fields[0])
}
