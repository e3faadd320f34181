// Package destination computes the on-disk layout of a deployed artifact.
package destination

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adamancini/autodeploy/internal/types"
)

// TempDirName is the staging directory created under the parent directory during an update.
const TempDirName = "Temp"

// Roots holds the scope-dependent root directories.
type Roots struct {
	PerMachine string
	PerUser    string
}

// DefaultRoots returns the platform roots: Program Files or /opt for per-machine installs,
// the user config directory for per-user installs.
func DefaultRoots() (Roots, error) {
	perUser, err := os.UserConfigDir()
	if err != nil {
		return Roots{}, fmt.Errorf("failed to determine user config directory: %w", err)
	}

	perMachine := "/opt"
	if runtime.GOOS == "windows" {
		perMachine = os.Getenv("ProgramFiles")
		if perMachine == "" {
			perMachine = `C:\Program Files`
		}
	}
	return Roots{PerMachine: perMachine, PerUser: perUser}, nil
}

// For returns the root directory for an installation scope.
func (r Roots) For(basis types.DeploymentBasis) string {
	if basis.IsPerMachine() {
		return r.PerMachine
	}
	return r.PerUser
}

// Input is everything the layout depends on.
type Input struct {
	Basis         types.DeploymentBasis
	Manufacturer  string
	Product       string
	HostBitness   types.Bitness
	Version       string
	ArtifactName  string
	FileExtension string
}

// Destination is the resolved layout of one artifact version.
type Destination struct {
	RootDirectory    string
	Manufacturer     string
	Product          string
	HostBitness      types.Bitness
	Version          string
	ArtifactFileName string

	// ParentDirectory is Root/Manufacturer/Product[/HostBitness]. The artifact and its
	// persisted records live here.
	ParentDirectory string
	ArtifactPath    string
	// TempDirectory exists only while a staged update is in flight.
	TempDirectory    string
	TempArtifactPath string
	// WorkingDirectory is ParentDirectory/Version and holds dependencies and asset files.
	WorkingDirectory string
}

// ValidationError reports an invalid layout input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Resolve computes the Destination for in under roots. It has no side effects.
func Resolve(roots Roots, in Input) (*Destination, error) {
	return resolve(runtime.GOOS, roots, in)
}

func resolve(goos string, roots Roots, in Input) (*Destination, error) {
	if err := in.Basis.Validate(); err != nil {
		return nil, ValidationError{Field: "basis", Message: err.Error()}
	}
	if err := in.HostBitness.Validate(); err != nil {
		return nil, ValidationError{Field: "host bitness", Message: err.Error()}
	}

	root := roots.For(in.Basis)
	if strings.TrimSpace(root) == "" {
		return nil, ValidationError{Field: "root directory", Message: fmt.Sprintf("no root directory configured for %s deployments", in.Basis)}
	}

	components := []struct {
		field string
		value string
	}{
		{"manufacturer", in.Manufacturer},
		{"product", in.Product},
		{"version", in.Version},
		{"artifact name", in.ArtifactName},
	}
	for _, c := range components {
		if err := validateComponent(goos, c.field, c.value); err != nil {
			return nil, err
		}
	}

	fileName := in.ArtifactName
	if ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(in.FileExtension), ".")); ext != "" {
		fileName = in.ArtifactName + "." + ext
	}
	if err := validateComponent(goos, "artifact file name", fileName); err != nil {
		return nil, err
	}

	parent := filepath.Join(root, in.Manufacturer, in.Product)
	if in.HostBitness.IsKnown() {
		parent = filepath.Join(parent, in.HostBitness.String())
	}
	temp := filepath.Join(parent, TempDirName)

	return &Destination{
		RootDirectory:    root,
		Manufacturer:     in.Manufacturer,
		Product:          in.Product,
		HostBitness:      in.HostBitness,
		Version:          in.Version,
		ArtifactFileName: fileName,
		ParentDirectory:  parent,
		ArtifactPath:     filepath.Join(parent, fileName),
		TempDirectory:    temp,
		TempArtifactPath: filepath.Join(temp, fileName),
		WorkingDirectory: filepath.Join(parent, in.Version),
	}, nil
}

// VersionDirectory returns the working directory another version of the artifact would use.
func (d *Destination) VersionDirectory(version string) string {
	return filepath.Join(d.ParentDirectory, version)
}

var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// validateComponent checks a single path segment against the platform's illegal-character set.
// ValidateComponent checks a single path segment against the reserved names and
// characters of the running platform.
func ValidateComponent(field, value string) error {
	return validateComponent(runtime.GOOS, field, value)
}

// ValidateRelative checks a relative path of one or more segments, such as a placement
// subdirectory. Absolute and drive-qualified paths are rejected.
func ValidateRelative(field, value string) error {
	return validateRelative(runtime.GOOS, field, value)
}

func validateRelative(goos, field, value string) error {
	if filepath.IsAbs(value) || strings.HasPrefix(value, "/") || strings.HasPrefix(value, `\`) ||
		(len(value) >= 2 && value[1] == ':') {
		return ValidationError{Field: field, Message: fmt.Sprintf("'%s' must be a relative path", value)}
	}
	segments := strings.FieldsFunc(value, func(r rune) bool { return r == '/' || r == '\\' })
	if len(segments) == 0 {
		return ValidationError{Field: field, Message: "must not be empty or whitespace"}
	}
	for _, seg := range segments {
		if err := validateComponent(goos, field, seg); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether path lies strictly below dir.
func Contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func validateComponent(goos, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Message: "must not be empty or whitespace"}
	}
	if value == "." || value == ".." {
		return ValidationError{Field: field, Message: fmt.Sprintf("'%s' is not a valid path segment", value)}
	}

	invalid := "/\x00"
	if goos == "windows" {
		invalid = `<>:"/\|?*` + "\x00"
	}
	for _, r := range value {
		if strings.ContainsRune(invalid, r) || (goos == "windows" && r < 32) {
			return ValidationError{Field: field, Message: fmt.Sprintf("contains invalid character %q", r)}
		}
	}

	if goos == "windows" {
		if strings.HasSuffix(value, ".") || strings.HasSuffix(value, " ") {
			return ValidationError{Field: field, Message: "must not end with a dot or space"}
		}
		base := strings.ToUpper(strings.SplitN(value, ".", 2)[0])
		if windowsReserved[base] {
			return ValidationError{Field: field, Message: fmt.Sprintf("'%s' is a reserved device name", value)}
		}
	}
	return nil
}
