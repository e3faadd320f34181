package diff

import (
	"github.com/adamancini/autodeploy/internal/deploy"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/platform"
	"github.com/adamancini/autodeploy/internal/state"
	"github.com/adamancini/autodeploy/internal/update"
)

// Compute plans the next pass for payloads against their deployed state. It follows the
// orchestrator's order: recovery, platform validation, first install, then update or
// repair. A nil probe skips platform validation.
func Compute(payloads []*payload.Payload, current state.Report, probe platform.SystemProbe) *Result {
	byID := make(map[string]*state.ArtifactState, len(current))
	for _, s := range current {
		byID[s.ID] = s
	}

	result := &Result{Payloads: make([]PayloadDiff, 0, len(payloads))}
	for _, p := range payloads {
		result.Payloads = append(result.Payloads, computePayload(p, byID[p.ID()], probe))
	}
	return result
}

func computePayload(p *payload.Payload, current *state.ArtifactState, probe platform.SystemProbe) PayloadDiff {
	d := PayloadDiff{
		Artifact:  p.Title(),
		Available: p.Artifact.Identity.Version,
		Current:   current,
	}

	if current == nil {
		d.Action = ActionError
		d.Reason = "deployed state could not be read"
		return d
	}
	d.Deployed = current.Deployed

	if current.Interrupted {
		d.Action = ActionRecover
		d.Reason = "an interrupted update will be rolled back"
		return d
	}

	if err := deploy.ValidatePlatform(p, probe); err != nil {
		d.Action = ActionError
		d.Reason = err.Error()
		return d
	}

	if !current.Installed {
		d.Action = ActionInstall
		return d
	}

	settings := p.Deployment.Settings
	if update.IsNewVersionAvailable(current.Deployed, d.Available) {
		d.Action = ActionUpdate
		d.Mandatory = update.IsMandatoryUpdate(current.Deployed, settings)
		d.Restart = settings.UpdateBehavior.RequiresRestart
		d.Prompt = (d.Mandatory && d.Restart) || settings.UpdateBehavior.NotifyClient
		return d
	}

	if current.Info != nil && current.Info.DependenciesPending {
		d.Action = ActionRepair
		d.Reason = "dependencies or asset files are incomplete"
		return d
	}

	d.Action = ActionNone
	return d
}
