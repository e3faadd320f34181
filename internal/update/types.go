package update

import (
	"github.com/adamancini/autodeploy/internal/manifest"
)

// Notifier asks the user whether an update should be applied now.
// allowSkip is false for mandatory updates and informational messages.
type Notifier interface {
	Notify(message, description string, info manifest.UpdateQueryInfo, allowSkip bool) (doUpdate bool, err error)
}

// ActivityProbe reports whether the host currently has the artifact loaded or installed.
type ActivityProbe interface {
	IsActive(title, path string) (bool, error)
}
