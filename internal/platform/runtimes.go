package platform

import (
	"bufio"
	"bytes"
	"strings"

	log "github.com/sirupsen/logrus"
)

// dotnetRuntimes parses `dotnet --list-runtimes`. A missing dotnet means no runtimes.
func dotnetRuntimes(runner CommandRunner) []Runtime {
	output, err := runner.Run("dotnet", "--list-runtimes")
	if err != nil {
		log.Debugf("dotnet runtimes unavailable: %v", err)
		return nil
	}
	return parseDotnetRuntimes(output)
}

// parseDotnetRuntimes reads lines of the form
// "Microsoft.NETCore.App 8.0.1 [/usr/share/dotnet/shared/Microsoft.NETCore.App]".
func parseDotnetRuntimes(output []byte) []Runtime {
	var runtimes []Runtime
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := parseLooseVersion(fields[1])
		if err != nil {
			continue
		}
		runtimes = append(runtimes, Runtime{Name: fields[0], Version: v})
	}
	return runtimes
}

// MatchesRuntime reports whether an installed runtime name satisfies a required one.
// Names compare case-insensitively ignoring punctuation, and a required name matches
// any runtime whose name contains it.
func MatchesRuntime(installed, required string) bool {
	i, r := squash(installed), squash(required)
	if r == "" {
		return false
	}
	return i == r || strings.Contains(i, r)
}

func squash(s string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(s) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}
