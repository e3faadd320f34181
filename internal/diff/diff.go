// Package diff computes what the next deployment pass would do for each payload.
package diff

import (
	"fmt"
	"strings"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/state"
)

// Action represents what the next pass would do for a payload.
type Action string

const (
	ActionNone    Action = "none"    // Already up to date
	ActionInstall Action = "install" // Nothing deployed yet
	ActionUpdate  Action = "update"  // Newer version available
	ActionRepair  Action = "repair"  // Dependencies incomplete
	ActionRecover Action = "recover" // Interrupted update to roll back first
	ActionError   Action = "error"   // Cannot be deployed here
)

// PayloadDiff is the plan for one payload.
type PayloadDiff struct {
	Artifact  string           `json:"artifact" yaml:"artifact"`
	Action    Action           `json:"action" yaml:"action"`
	Deployed  manifest.Version `json:"deployed_version" yaml:"deployed_version"`
	Available manifest.Version `json:"available_version" yaml:"available_version"`
	Mandatory bool             `json:"mandatory" yaml:"mandatory"`
	// Prompt is set when the update would ask for confirmation.
	Prompt  bool   `json:"prompt" yaml:"prompt"`
	Restart bool   `json:"restart" yaml:"restart"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`

	Current *state.ArtifactState `json:"-" yaml:"-"`
}

// Result contains the plan for every payload.
type Result struct {
	Payloads []PayloadDiff `json:"payloads" yaml:"payloads"`
	// Errors are registry entries that could not be resolved into payloads.
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Summary returns counts of actions needed.
func (r *Result) Summary() (install, update, repair, errors int) {
	for _, p := range r.Payloads {
		switch p.Action {
		case ActionInstall:
			install++
		case ActionUpdate:
			update++
		case ActionRepair, ActionRecover:
			repair++
		case ActionError:
			errors++
		}
	}
	errors += len(r.Errors)
	return
}

// String renders the plan for text output.
func (r *Result) String() string {
	var b strings.Builder
	for _, p := range r.Payloads {
		fmt.Fprintf(&b, "%s %s", symbol(p.Action), p.Artifact)
		switch p.Action {
		case ActionInstall:
			fmt.Fprintf(&b, " (install %s)", p.Available)
		case ActionUpdate:
			fmt.Fprintf(&b, " (%s -> %s", p.Deployed, p.Available)
			var flags []string
			if p.Mandatory {
				flags = append(flags, "mandatory")
			}
			if p.Prompt {
				flags = append(flags, "prompts")
			}
			if p.Restart {
				flags = append(flags, "restart")
			}
			if len(flags) > 0 {
				fmt.Fprintf(&b, ", %s", strings.Join(flags, ", "))
			}
			b.WriteString(")")
		case ActionNone:
			fmt.Fprintf(&b, " (%s)", p.Deployed)
		}
		if p.Reason != "" {
			fmt.Fprintf(&b, ": %s", p.Reason)
		}
		b.WriteString("\n")
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "%s %s\n", symbol(ActionError), e)
	}

	install, update, repair, errors := r.Summary()
	fmt.Fprintf(&b, "\n%d to install, %d to update, %d to repair, %d errors", install, update, repair, errors)
	return b.String()
}

func symbol(a Action) string {
	switch a {
	case ActionInstall:
		return "+"
	case ActionUpdate:
		return "~"
	case ActionRepair, ActionRecover:
		return "!"
	case ActionError:
		return "x"
	default:
		return "="
	}
}
