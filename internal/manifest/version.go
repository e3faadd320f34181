package manifest

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Version is a manifest version number such as "1.4" or "2.0.1.7".
// The zero value means "no version" and sorts below every real version.
type Version struct {
	v *goversion.Version
}

// ParseVersion parses a version string. Supports formats like "1.0", "v1.0.2", "2.0.0-rc.1".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("invalid version format: empty string")
	}
	v, err := goversion.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version format: %s", s)
	}
	return Version{v: v}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v holds no version.
func (v Version) IsZero() bool {
	return v.v == nil
}

// String returns the version as it was written in the manifest.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Compare compares two versions
// Returns:
//   - 1 if v > other
//   - 0 if v == other
//   - -1 if v < other
func (v Version) Compare(other Version) int {
	switch {
	case v.v == nil && other.v == nil:
		return 0
	case v.v == nil:
		return -1
	case other.v == nil:
		return 1
	}
	return v.v.Compare(other.v)
}

// LessThan returns true if v < other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// Equal returns true if v == other. "1.0" and "1.0.0" are equal.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text yields the zero Version.
func (v *Version) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*v = Version{}
		return nil
	}
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
