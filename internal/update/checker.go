// Package update decides whether a deployed artifact is out of date and whether an
// update may be applied silently or needs the user's confirmation.
package update

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/payload"
)

// Engine builds CheckedUpdates and gates their processing.
type Engine struct {
	notifier Notifier
	activity ActivityProbe
	now      func() time.Time
}

// NewEngine creates an engine that asks notifier for confirmation and probes host activity with activity.
func NewEngine(notifier Notifier, activity ActivityProbe) *Engine {
	return &Engine{
		notifier: notifier,
		activity: activity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock (for testing).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// GetCheckedUpdate compares the payload against the deployed version, reading the
// previously persisted UpdateQueryInfo when present.
func (e *Engine) GetCheckedUpdate(p *payload.Payload, deployed manifest.Version) *CheckedUpdate {
	previous, err := manifest.ReadQueryInfoRecord(p.QueryInfoRecordPath())
	if err != nil {
		log.WithField("artifact", p.Title()).Warnf("ignoring unreadable update record: %v", err)
		previous = nil
	}
	return e.Check(p, deployed, previous)
}

// Check builds a CheckedUpdate from an explicit previous record. A nil previous record
// is treated as never notified.
func (e *Engine) Check(p *payload.Payload, deployed manifest.Version, previous *manifest.UpdateQueryInfo) *CheckedUpdate {
	now := e.now()
	available := p.Artifact.Identity.Version
	settings := p.Deployment.Settings

	info := manifest.UpdateQueryInfo{
		LastChecked:            now,
		DeployedVersion:        deployed,
		AvailableVersion:       available,
		MinimumRequiredVersion: settings.MinimumRequiredVersion,
		UpdateAvailable:        IsNewVersionAvailable(deployed, available),
		IsMandatoryUpdate:      IsMandatoryUpdate(deployed, settings),
		IsRestartRequired:      IsRestartRequired(p, e.activity),
		Size:                   p.Artifact.TotalSize(),
	}

	// FirstNotified changes only when a different version becomes available.
	if previous == nil || !previous.AvailableVersion.Equal(available) || previous.FirstNotified.IsZero() {
		info.FirstNotified = now
		info.LastNotified = now
	} else {
		info.FirstNotified = previous.FirstNotified
		info.LastNotified = previous.LastNotified
	}
	if previous != nil {
		info.DependenciesPending = previous.DependenciesPending
	}

	return &CheckedUpdate{Info: info, Payload: p}
}

// CanProceedWithUpdate gates processing of a checked update. Updates that need the
// user's attention block on the Notifier and its answer is the result; everything else
// is a silent update that proceeds only when a newer version actually exists.
func (e *Engine) CanProceedWithUpdate(c *CheckedUpdate) (bool, error) {
	if !c.Info.UpdateAvailable {
		return false, nil
	}
	if !c.RequiresNotification() {
		return true, nil
	}
	return e.notify(c)
}

// Remind tells the user again about an update that is still not applied, once the
// reminder period has elapsed since the last notification. The reminder is
// informational: the update itself is applied by the next startup or event-driven pass.
// It reports whether a reminder was shown.
func (e *Engine) Remind(c *CheckedUpdate, period manifest.Expiration) (bool, error) {
	if !c.Info.UpdateAvailable || !IsExpired(c.Info.LastNotified, period, e.now()) {
		return false, nil
	}
	return true, e.inform(c, c.ReminderDescription())
}

// RemindRestart tells the user that a deployed update is waiting for a host restart,
// once the reminder period has elapsed since the last notification.
func (e *Engine) RemindRestart(c *CheckedUpdate, period manifest.Expiration) (bool, error) {
	if !IsExpired(c.Info.LastNotified, period, e.now()) {
		return false, nil
	}
	return true, e.inform(c, c.RestartDescription())
}

// inform shows a message that cannot be answered and stamps LastNotified.
func (e *Engine) inform(c *CheckedUpdate, message string) error {
	if _, err := e.notifier.Notify(message, c.Caption(), c.Info, false); err != nil {
		return fmt.Errorf("notify update for %s: %w", c.Payload.Title(), err)
	}
	c.Info.LastNotified = e.now()
	return nil
}

func (e *Engine) notify(c *CheckedUpdate) (bool, error) {
	doUpdate, err := e.notifier.Notify(c.Description(), c.Caption(), c.Info, !c.Info.IsMandatoryUpdate)
	if err != nil {
		return false, fmt.Errorf("notify update for %s: %w", c.Payload.Title(), err)
	}

	now := e.now()
	if c.Info.FirstNotified.IsZero() {
		c.Info.FirstNotified = now
	}
	c.Info.LastNotified = now

	return doUpdate, nil
}
