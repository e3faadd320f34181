// Package interactive asks the user whether an update should be applied now.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/types"
	"github.com/adamancini/autodeploy/internal/update"
)

// Response represents the user's response to a prompt.
type Response int

const (
	ResponseYes  Response = iota // Apply this update
	ResponseNo                   // Defer this update
	ResponseAll                  // Apply this and every later update this session
	ResponseQuit                 // Input closed
)

// Prompter is a terminal Notifier.
type Prompter struct {
	mu         sync.Mutex
	in         io.Reader
	out        io.Writer
	scanner    *bufio.Scanner
	approveAll bool
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Notify prints the message and, when allowSkip is set, asks whether to update now.
// Messages that cannot be skipped wait for Enter and always return true.
func (p *Prompter) Notify(message, description string, info manifest.UpdateQueryInfo, allowSkip bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintf(p.out, "\n%s\n", description)
	if info.AvailableVersion.IsZero() {
		_, _ = fmt.Fprintf(p.out, "%s\n", message)
	} else {
		_, _ = fmt.Fprintf(p.out, "  %s %s -> %s (%s)\n", updateSymbol, versionOrNone(info.DeployedVersion), info.AvailableVersion, formatSize(info.Size))
		_, _ = fmt.Fprintf(p.out, "%s\n", message)
	}

	if !allowSkip {
		_, _ = fmt.Fprint(p.out, "Press Enter to continue. ")
		p.scanner.Scan()
		return true, nil
	}

	switch p.prompt("Update now?") {
	case ResponseYes, ResponseAll:
		return true, nil
	case ResponseQuit:
		_, _ = fmt.Fprintln(p.out, "\nNo input, deferring.")
		return false, nil
	default:
		_, _ = fmt.Fprintf(p.out, "  %s Deferred\n", skipSymbol)
		return false, nil
	}
}

// prompt displays a question and reads the response.
func (p *Prompter) prompt(format string, args ...interface{}) Response {
	if p.approveAll {
		return ResponseYes
	}

	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/n/a] ")

	if !p.scanner.Scan() {
		return ResponseQuit
	}

	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	switch input {
	case "y", "yes":
		return ResponseYes
	case "n", "no", "later":
		return ResponseNo
	case "a", "all":
		p.approveAll = true
		return ResponseAll
	default:
		// Default to no for invalid input
		_, _ = fmt.Fprintln(p.out, "Invalid response, deferring.")
		return ResponseNo
	}
}

// Symbols for output
const (
	updateSymbol = "~"
	skipSymbol   = "-"
)

func versionOrNone(v manifest.Version) string {
	if v.IsZero() {
		return "(none)"
	}
	return v.String()
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Policy answers every prompt the same way without user interaction.
type Policy struct {
	accept bool
}

// Accept returns a Notifier that applies every update.
func Accept() *Policy { return &Policy{accept: true} }

// Decline returns a Notifier that defers every optional update. Updates that cannot be
// skipped still proceed.
func Decline() *Policy { return &Policy{accept: false} }

// Notify logs the message and returns the policy's answer.
func (p *Policy) Notify(message, description string, info manifest.UpdateQueryInfo, allowSkip bool) (bool, error) {
	answer := p.accept || !allowSkip
	log.WithFields(log.Fields{
		"product":   description,
		"available": info.AvailableVersion.String(),
		"accepted":  answer,
	}).Info(strings.ReplaceAll(message, "\n", " "))
	return answer, nil
}

// ForMode returns the Notifier for a notify mode. Prompt mode falls back to Decline
// when stdin is not a terminal.
func ForMode(mode types.NotifyMode) update.Notifier {
	switch mode {
	case types.NotifyAccept:
		return Accept()
	case types.NotifyDecline:
		return Decline()
	default:
		if !IsTerminal() {
			log.Warn("stdin is not a terminal, optional updates will be deferred")
			return Decline()
		}
		return NewPrompter()
	}
}
