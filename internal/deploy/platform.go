package deploy

import (
	"fmt"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/platform"
	"github.com/adamancini/autodeploy/internal/types"
)

// PlatformError reports a client that does not meet a deployment's requirements.
type PlatformError struct {
	Artifact string
	Problem  string
	Solution string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("deploying %s: %s %s", e.Artifact, e.Problem, e.Solution)
}

// ValidatePlatform checks the payload's requirements against the client in a fixed
// order: scope, OS bitness, OS platform, OS version, host bitness, runtimes. The first
// unmet requirement is returned. A nil probe skips validation.
func ValidatePlatform(p *payload.Payload, probe platform.SystemProbe) error {
	if probe == nil {
		return nil
	}
	title := p.Title()
	d := p.Deployment

	if d.Settings.DeploymentBasis.IsPerMachine() {
		elevated, err := probe.IsElevatedUser()
		if err != nil {
			return fmt.Errorf("check elevation for %s: %w", title, err)
		}
		if !elevated {
			return &PlatformError{
				Artifact: title,
				Problem:  "A per-machine deployment requires elevated privileges.",
				Solution: "Run the agent as an administrator or deploy per-user.",
			}
		}
	}

	if req := d.RequiredOperatingSystem; req != nil {
		if err := validateOS(title, req.Bitness, probe); err != nil {
			return err
		}
		info, err := probe.OS()
		if err != nil {
			return fmt.Errorf("detect operating system for %s: %w", title, err)
		}
		if !info.Matches(req.Platform) {
			return &PlatformError{
				Artifact: title,
				Problem:  fmt.Sprintf("The operating system is %s.", info.Family),
				Solution: fmt.Sprintf("The operating system should be %s.", req.Platform),
			}
		}
		if !req.Version.IsZero() && !info.Version.Equal(req.Version) {
			return &PlatformError{
				Artifact: title,
				Problem:  fmt.Sprintf("The operating system version is %s.", info.Version),
				Solution: fmt.Sprintf("The operating system version should be %s.", req.Version),
			}
		}
		if !req.MinimumVersion.IsZero() && info.Version.LessThan(req.MinimumVersion) {
			return &PlatformError{
				Artifact: title,
				Problem:  fmt.Sprintf("The operating system version is %s.", info.Version),
				Solution: fmt.Sprintf("The operating system version should be %s or later.", req.MinimumVersion),
			}
		}
	}

	if d.TargetHostBitness.IsKnown() {
		hostBitness, err := probe.HostBitness()
		if err != nil {
			return fmt.Errorf("detect host bitness for %s: %w", title, err)
		}
		if hostBitness.IsKnown() && hostBitness != d.TargetHostBitness {
			return &PlatformError{
				Artifact: title,
				Problem:  fmt.Sprintf("The host application is %s.", hostBitness),
				Solution: fmt.Sprintf("The host application should be %s.", d.TargetHostBitness),
			}
		}
	}

	if len(d.CompatibleFrameworks) == 0 {
		return nil
	}
	installed, err := probe.InstalledRuntimes()
	if err != nil {
		return fmt.Errorf("detect installed runtimes for %s: %w", title, err)
	}
	for _, fw := range d.CompatibleFrameworks {
		if !hasRuntime(installed, fw.SupportedRuntime, fw.TargetVersion) {
			want := fw.SupportedRuntime
			if !fw.TargetVersion.IsZero() {
				want += " " + fw.TargetVersion.String()
			}
			return &PlatformError{
				Artifact: title,
				Problem:  fmt.Sprintf("The runtime %s is not installed.", want),
				Solution: "Install it, or a later version, and restart the host application.",
			}
		}
	}
	return nil
}

func validateOS(title string, bitness types.Bitness, probe platform.SystemProbe) error {
	if !bitness.IsKnown() {
		return nil
	}
	osBitness, err := probe.OSBitness()
	if err != nil {
		return fmt.Errorf("detect OS bitness for %s: %w", title, err)
	}
	if osBitness != bitness {
		return &PlatformError{
			Artifact: title,
			Problem:  fmt.Sprintf("The operating system is %s.", osBitness),
			Solution: fmt.Sprintf("The operating system should be %s.", bitness),
		}
	}
	return nil
}

func hasRuntime(installed []platform.Runtime, name string, minimum manifest.Version) bool {
	for _, r := range installed {
		if platform.MatchesRuntime(r.Name, name) && !r.Version.LessThan(minimum) {
			return true
		}
	}
	return false
}
