package update

import (
	"fmt"
	"strings"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/payload"
)

// CheckedUpdate pairs the result of an update check with the payload it was computed for.
type CheckedUpdate struct {
	Info    manifest.UpdateQueryInfo
	Payload *payload.Payload
}

// RequiresNotification reports whether the user must see this update before it is applied.
func (c *CheckedUpdate) RequiresNotification() bool {
	if c.Payload.Deployment.Settings.UpdateBehavior.NotifyClient {
		return true
	}
	return c.Info.IsMandatoryUpdate && c.Info.IsRestartRequired
}

// Description returns the message shown to the user for this update.
func (c *CheckedUpdate) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new version of %s is available!\n\n", c.Payload.Title())

	if c.Info.IsMandatoryUpdate {
		b.WriteString("Please wait while the update is processed.")
	} else {
		b.WriteString("Would you like to update now, or defer until later?")
	}

	if c.Info.IsRestartRequired {
		b.WriteString("\nNote: Once the update is complete, you MUST restart the host application for it to take effect.")
	}
	return b.String()
}

// ReminderDescription returns the message shown when a pending update is brought up
// again.
func (c *CheckedUpdate) ReminderDescription() string {
	msg := fmt.Sprintf("Version %s of %s is still waiting to be installed.\n\n"+
		"It will be installed the next time the host application starts.",
		c.Info.AvailableVersion, c.Payload.Title())
	if c.Info.IsMandatoryUpdate {
		msg += "\nThis update is mandatory."
	}
	return msg
}

// RestartDescription returns the message shown while a deployed update waits for the
// host to restart.
func (c *CheckedUpdate) RestartDescription() string {
	return fmt.Sprintf("%s was updated to version %s.\n\n"+
		"Please restart the host application for the update to take effect.",
		c.Payload.Title(), c.Info.DeployedVersion)
}

// Caption returns the product and publisher shown alongside the description.
func (c *CheckedUpdate) Caption() string {
	d := c.Payload.Deployment.Description
	if d.Publisher == "" {
		return d.Product
	}
	return fmt.Sprintf("%s (%s)", d.Product, d.Publisher)
}
