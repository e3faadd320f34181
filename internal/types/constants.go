// Package types provides type-safe constants for deployment manifests and agent configuration.
//
// This package centralizes the enumerated values that appear in registry, deployment and
// artifact manifests, replacing magic strings with typed constants that provide
// validation and parsing helpers.
//
// SYNC REQUIREMENT: These types must stay in sync with:
//   - internal/manifest/validate.go (struct validation tags)
//   - internal/templates/*.yaml (sample configuration)
package types

import (
	"fmt"
	"strings"
)

// DeploymentBasis is the installation scope of an artifact.
type DeploymentBasis string

const (
	// DeploymentBasisPerMachine installs under the machine-wide root and requires elevation.
	DeploymentBasisPerMachine DeploymentBasis = "per-machine"
	// DeploymentBasisPerUser installs under the current user's root.
	DeploymentBasisPerUser DeploymentBasis = "per-user"
)

// AllDeploymentBases returns all valid deployment bases.
func AllDeploymentBases() []DeploymentBasis {
	return []DeploymentBasis{DeploymentBasisPerMachine, DeploymentBasisPerUser}
}

// Validate checks if the DeploymentBasis is a valid value.
func (b DeploymentBasis) Validate() error {
	switch b {
	case DeploymentBasisPerMachine, DeploymentBasisPerUser:
		return nil
	case "":
		return fmt.Errorf("deployment basis is required")
	default:
		return fmt.Errorf("invalid deployment basis '%s' (must be per-machine or per-user)", b)
	}
}

// String returns the string representation of the DeploymentBasis.
func (b DeploymentBasis) String() string {
	return string(b)
}

// IsPerMachine returns true if the basis is per-machine.
func (b DeploymentBasis) IsPerMachine() bool {
	return b == DeploymentBasisPerMachine
}

// ParseDeploymentBasis parses a string into a DeploymentBasis.
func ParseDeploymentBasis(s string) (DeploymentBasis, error) {
	b := DeploymentBasis(normalize(s))
	switch b {
	case "permachine":
		b = DeploymentBasisPerMachine
	case "peruser":
		b = DeploymentBasisPerUser
	}
	if err := b.Validate(); err != nil {
		return "", err
	}
	return b, nil
}

// UpdateMode controls whether an update may be declined.
type UpdateMode string

const (
	// UpdateModeForced makes every update mandatory.
	UpdateModeForced UpdateMode = "forced"
	// UpdateModeOptional lets the user defer updates above the minimum required version.
	UpdateModeOptional UpdateMode = "optional"
)

// AllUpdateModes returns all valid update modes.
func AllUpdateModes() []UpdateMode {
	return []UpdateMode{UpdateModeForced, UpdateModeOptional}
}

// Validate checks if the UpdateMode is a valid value.
func (m UpdateMode) Validate() error {
	switch m {
	case UpdateModeForced, UpdateModeOptional:
		return nil
	case "":
		return fmt.Errorf("update mode is required")
	default:
		return fmt.Errorf("invalid update mode '%s' (must be forced or optional)", m)
	}
}

// String returns the string representation of the UpdateMode.
func (m UpdateMode) String() string {
	return string(m)
}

// IsForced returns true if the mode is forced.
func (m UpdateMode) IsForced() bool {
	return m == UpdateModeForced
}

// ParseUpdateMode parses a string into an UpdateMode.
func ParseUpdateMode(s string) (UpdateMode, error) {
	m := UpdateMode(normalize(s))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// FileHostType is the kind of server publishing manifests and files.
type FileHostType string

const (
	// FileHostFileServer is a mounted file share; sources are filesystem paths or file:// URIs.
	FileHostFileServer FileHostType = "fileserver"
	// FileHostWebServer is an HTTP(S) server.
	FileHostWebServer FileHostType = "webserver"
)

// AllFileHostTypes returns all valid file host types.
func AllFileHostTypes() []FileHostType {
	return []FileHostType{FileHostFileServer, FileHostWebServer}
}

// Validate checks if the FileHostType is a valid value.
func (h FileHostType) Validate() error {
	switch h {
	case FileHostFileServer, FileHostWebServer:
		return nil
	case "":
		return fmt.Errorf("file host type is required")
	default:
		return fmt.Errorf("invalid file host type '%s' (must be fileserver or webserver)", h)
	}
}

// String returns the string representation of the FileHostType.
func (h FileHostType) String() string {
	return string(h)
}

// IsFileServer returns true if the host is a file share.
func (h FileHostType) IsFileServer() bool {
	return h == FileHostFileServer
}

// IsWebServer returns true if the host is an HTTP server.
func (h FileHostType) IsWebServer() bool {
	return h == FileHostWebServer
}

// ParseFileHostType parses a string into a FileHostType.
func ParseFileHostType(s string) (FileHostType, error) {
	h := FileHostType(normalize(s))
	if err := h.Validate(); err != nil {
		return "", err
	}
	return h, nil
}

// Bitness is the word size of an operating system or host application.
type Bitness string

const (
	// BitnessUnknown means the probe could not tell.
	BitnessUnknown Bitness = ""
	// Bitness32 is a 32-bit platform.
	Bitness32 Bitness = "x86"
	// Bitness64 is a 64-bit platform.
	Bitness64 Bitness = "x64"
)

// AllBitnesses returns all known bitness values.
func AllBitnesses() []Bitness {
	return []Bitness{Bitness32, Bitness64}
}

// Validate checks if the Bitness is a valid value. Unknown is valid.
func (b Bitness) Validate() error {
	switch b {
	case BitnessUnknown, Bitness32, Bitness64:
		return nil
	default:
		return fmt.Errorf("invalid bitness '%s' (must be x86 or x64)", b)
	}
}

// String returns the string representation of the Bitness.
func (b Bitness) String() string {
	return string(b)
}

// IsKnown returns true if the bitness is not unknown.
func (b Bitness) IsKnown() bool {
	return b != BitnessUnknown
}

// ParseBitness parses a string into a Bitness. Accepts x86/x64, 32/64 and arch names.
func ParseBitness(s string) (Bitness, error) {
	switch normalize(s) {
	case "":
		return BitnessUnknown, nil
	case "x86", "32", "x32", "i386", "i686", "386", "arm":
		return Bitness32, nil
	case "x64", "64", "amd64", "x86_64", "arm64", "aarch64":
		return Bitness64, nil
	default:
		return "", fmt.Errorf("invalid bitness '%s' (must be x86 or x64)", s)
	}
}

// UnitOfTime is the unit of an update reminder expiration.
type UnitOfTime string

const (
	UnitMinutes UnitOfTime = "minutes"
	UnitHours   UnitOfTime = "hours"
	UnitDays    UnitOfTime = "days"
	UnitWeeks   UnitOfTime = "weeks"
	UnitMonths  UnitOfTime = "months"
)

// AllUnitsOfTime returns all valid units, shortest first.
func AllUnitsOfTime() []UnitOfTime {
	return []UnitOfTime{UnitMinutes, UnitHours, UnitDays, UnitWeeks, UnitMonths}
}

// Validate checks if the UnitOfTime is a valid value.
func (u UnitOfTime) Validate() error {
	switch u {
	case UnitMinutes, UnitHours, UnitDays, UnitWeeks, UnitMonths:
		return nil
	case "":
		return fmt.Errorf("unit of time is required")
	default:
		return fmt.Errorf("invalid unit of time '%s' (must be minutes, hours, days, weeks, or months)", u)
	}
}

// String returns the string representation of the UnitOfTime.
func (u UnitOfTime) String() string {
	return string(u)
}

// ParseUnitOfTime parses a string into a UnitOfTime.
func ParseUnitOfTime(s string) (UnitOfTime, error) {
	u := UnitOfTime(normalize(s))
	if err := u.Validate(); err != nil {
		return "", err
	}
	return u, nil
}

// HashAlgorithm names the digest used to verify a downloaded file.
type HashAlgorithm string

const (
	HashMD5    HashAlgorithm = "md5"
	HashSHA1   HashAlgorithm = "sha1"
	HashSHA256 HashAlgorithm = "sha256"
	HashSHA384 HashAlgorithm = "sha384"
	HashSHA512 HashAlgorithm = "sha512"
	HashBLAKE3 HashAlgorithm = "blake3"
)

// AllHashAlgorithms returns all supported hash algorithms.
func AllHashAlgorithms() []HashAlgorithm {
	return []HashAlgorithm{HashMD5, HashSHA1, HashSHA256, HashSHA384, HashSHA512, HashBLAKE3}
}

// Validate checks if the HashAlgorithm is a valid value.
func (a HashAlgorithm) Validate() error {
	switch a {
	case HashMD5, HashSHA1, HashSHA256, HashSHA384, HashSHA512, HashBLAKE3:
		return nil
	case "":
		return fmt.Errorf("hash algorithm is required")
	default:
		return fmt.Errorf("unsupported hash algorithm '%s'", a)
	}
}

// String returns the string representation of the HashAlgorithm.
func (a HashAlgorithm) String() string {
	return string(a)
}

// ParseHashAlgorithm parses a string into a HashAlgorithm. "SHA-256" and "sha256" are equivalent.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	a := HashAlgorithm(strings.ReplaceAll(normalize(s), "-", ""))
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}

// TriggerKind is the UpdateMonitor strategy selected for a payload.
type TriggerKind string

const (
	// TriggerNone disables background re-triggering.
	TriggerNone TriggerKind = "none"
	// TriggerEvent re-runs the pipeline on file-share change notifications.
	TriggerEvent TriggerKind = "event"
	// TriggerTimer runs a periodic reminder check.
	TriggerTimer TriggerKind = "timer"
)

// String returns the string representation of the TriggerKind.
func (k TriggerKind) String() string {
	return string(k)
}

// NotifyMode selects how update confirmations are answered.
type NotifyMode string

const (
	// NotifyPrompt asks on the controlling terminal.
	NotifyPrompt NotifyMode = "prompt"
	// NotifyAccept answers yes without asking.
	NotifyAccept NotifyMode = "accept"
	// NotifyDecline answers no without asking.
	NotifyDecline NotifyMode = "decline"
)

// AllNotifyModes returns all valid notify modes.
func AllNotifyModes() []NotifyMode {
	return []NotifyMode{NotifyPrompt, NotifyAccept, NotifyDecline}
}

// Validate checks if the NotifyMode is a valid value. Empty defaults to prompt.
func (m NotifyMode) Validate() error {
	switch m {
	case "", NotifyPrompt, NotifyAccept, NotifyDecline:
		return nil
	default:
		return fmt.Errorf("invalid notify mode '%s' (must be prompt, accept, or decline)", m)
	}
}

// Default returns prompt if empty, otherwise the current mode.
func (m NotifyMode) Default() NotifyMode {
	if m == "" {
		return NotifyPrompt
	}
	return m
}

// String returns the string representation of the NotifyMode.
func (m NotifyMode) String() string {
	return string(m)
}

// ParseNotifyMode parses a string into a NotifyMode.
func ParseNotifyMode(s string) (NotifyMode, error) {
	m := NotifyMode(normalize(s))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m.Default(), nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UnmarshalText accepts any spelling ParseDeploymentBasis accepts.
func (b *DeploymentBasis) UnmarshalText(text []byte) error {
	v, err := ParseDeploymentBasis(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalText accepts any spelling ParseUpdateMode accepts.
func (m *UpdateMode) UnmarshalText(text []byte) error {
	v, err := ParseUpdateMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// UnmarshalText accepts any spelling ParseFileHostType accepts.
func (h *FileHostType) UnmarshalText(text []byte) error {
	v, err := ParseFileHostType(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// UnmarshalText accepts any spelling ParseBitness accepts.
func (b *Bitness) UnmarshalText(text []byte) error {
	v, err := ParseBitness(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalText accepts any spelling ParseUnitOfTime accepts.
func (u *UnitOfTime) UnmarshalText(text []byte) error {
	v, err := ParseUnitOfTime(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// UnmarshalText accepts any spelling ParseHashAlgorithm accepts.
func (a *HashAlgorithm) UnmarshalText(text []byte) error {
	v, err := ParseHashAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
