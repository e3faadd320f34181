package host

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommandRunner is an interface for running external commands.
// This allows for mocking in tests.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner uses os/exec to run commands.
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	return cmd.CombinedOutput()
}

// Loader loads the artifact into the running host for the current session.
type Loader interface {
	Load(path string) error
	Unload(path string) error
}

// Installer registers the artifact with the host so it survives restarts.
type Installer interface {
	Install(title, path string) error
	Uninstall(title, path string) error
}

// Closer asks the host application to exit.
type Closer interface {
	Close() error
}

// Commands are argv templates for each host operation. "{path}" and "{title}" are
// replaced in every argument. An empty template makes the operation a no-op.
type Commands struct {
	Load      []string
	Unload    []string
	Install   []string
	Uninstall []string
	Close     []string
	IsActive  []string
}

// CommandHost drives the host through external commands.
type CommandHost struct {
	commands Commands
	runner   CommandRunner
}

// NewCommandHost creates a command-driven host integration.
func NewCommandHost(commands Commands, runner CommandRunner) *CommandHost {
	if runner == nil {
		runner = &DefaultCommandRunner{}
	}
	return &CommandHost{commands: commands, runner: runner}
}

// Load executes the load command.
func (h *CommandHost) Load(path string) error {
	return h.run("load", h.commands.Load, "", path)
}

// Unload executes the unload command.
func (h *CommandHost) Unload(path string) error {
	return h.run("unload", h.commands.Unload, "", path)
}

// Install executes the install command.
func (h *CommandHost) Install(title, path string) error {
	return h.run("install", h.commands.Install, title, path)
}

// Uninstall executes the uninstall command.
func (h *CommandHost) Uninstall(title, path string) error {
	return h.run("uninstall", h.commands.Uninstall, title, path)
}

// Close executes the close command.
func (h *CommandHost) Close() error {
	return h.run("close", h.commands.Close, "", "")
}

// CanProbe reports whether an is_active command is configured.
func (h *CommandHost) CanProbe() bool {
	return len(h.commands.IsActive) > 0
}

// IsActive runs the is_active command. Exit status 0 means active, any other exit
// status means inactive.
func (h *CommandHost) IsActive(title, path string) (bool, error) {
	if !h.CanProbe() {
		return false, nil
	}
	argv := expand(h.commands.IsActive, title, path)
	output, err := h.runner.Run(argv[0], argv[1:]...)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("failed to probe %s: %w\nOutput: %s", title, err, string(output))
}

func (h *CommandHost) run(action string, template []string, title, path string) error {
	if len(template) == 0 {
		log.Debugf("no %s command configured, skipping", action)
		return nil
	}

	argv := expand(template, title, path)
	log.Debugf("host %s: %s", action, strings.Join(argv, " "))

	output, err := h.runner.Run(argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w\nOutput: %s", action, path, err, string(output))
	}
	return nil
}

func expand(template []string, title, path string) []string {
	r := strings.NewReplacer("{path}", path, "{title}", title)
	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = r.Replace(arg)
	}
	return argv
}
