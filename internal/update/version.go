package update

import (
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/payload"
)

// IsNewVersionAvailable returns true if incoming is newer than deployed.
func IsNewVersionAvailable(deployed, incoming manifest.Version) bool {
	return deployed.LessThan(incoming)
}

// IsMandatoryUpdate returns true if the deployment forces updates or the deployed
// version is below the minimum required version.
func IsMandatoryUpdate(deployed manifest.Version, settings manifest.Settings) bool {
	return settings.UpdateBehavior.Mode.IsForced() ||
		IsNewVersionAvailable(deployed, settings.MinimumRequiredVersion)
}

// IsRestartRequired returns true if the deployment requires a restart or the host
// currently has the artifact active. A failing probe counts as active.
func IsRestartRequired(p *payload.Payload, probe ActivityProbe) bool {
	if p.Deployment.Settings.UpdateBehavior.RequiresRestart {
		return true
	}
	if probe == nil {
		return false
	}

	active, err := probe.IsActive(p.Title(), p.Destination.ArtifactPath)
	if err != nil {
		log.WithField("artifact", p.Title()).Warnf("failed to probe host activity, assuming active: %v", err)
		return true
	}
	return active
}
