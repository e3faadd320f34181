package deploy

import (
	"github.com/hashicorp/go-multierror"
)

// Action is what a pass did, or would do, with one payload.
type Action string

const (
	ActionInstall Action = "install"
	ActionUpdate  Action = "update"
	ActionRepair  Action = "repair"
	ActionNone    Action = "none"
	ActionDefer   Action = "defer"
	ActionRemind  Action = "remind"
	ActionError   Action = "error"
)

// Operation records the outcome for one payload.
type Operation struct {
	Artifact  string `json:"artifact" yaml:"artifact"`
	Action    Action `json:"action" yaml:"action"`
	Deployed  string `json:"deployed,omitempty" yaml:"deployed,omitempty"`
	Available string `json:"available,omitempty" yaml:"available,omitempty"`
	Success   bool   `json:"success" yaml:"success"`
	// Restart is set when the host must restart for the change to take effect.
	Restart bool   `json:"restart,omitempty" yaml:"restart,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result represents the outcome of an orchestration pass.
type Result struct {
	Pass       string      `json:"pass" yaml:"pass"`
	Installed  int         `json:"installed" yaml:"installed"`
	Updated    int         `json:"updated" yaml:"updated"`
	Repaired   int         `json:"repaired" yaml:"repaired"`
	Skipped    int         `json:"skipped" yaml:"skipped"`
	Failed     int         `json:"failed" yaml:"failed"`
	Restarts   int         `json:"restarts" yaml:"restarts"`
	Operations []Operation `json:"operations" yaml:"operations"`
	Errors     []error     `json:"-" yaml:"-"`
}

func (r *Result) add(op Operation, err error) {
	r.Operations = append(r.Operations, op)
	if op.Restart {
		r.Restarts++
	}
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
	if !op.Success {
		r.Failed++
		return
	}
	switch op.Action {
	case ActionInstall:
		r.Installed++
	case ActionUpdate:
		r.Updated++
	case ActionRepair:
		r.Repaired++
	default:
		r.Skipped++
	}
}

// Err aggregates the per-payload errors of the pass.
func (r *Result) Err() error {
	var errs *multierror.Error
	for _, err := range r.Errors {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// combine joins the non-nil errors. A single error is returned unwrapped.
func combine(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result == nil {
		return nil
	}
	if len(result.Errors) == 1 {
		return result.Errors[0]
	}
	return result
}
