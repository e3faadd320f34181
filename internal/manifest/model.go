// Package manifest defines the registry, deployment and artifact manifests and the
// per-artifact records persisted next to a deployed artifact.
package manifest

import (
	"encoding/xml"
	"time"

	"github.com/adamancini/autodeploy/internal/types"
)

// Registry is the ordered list of published deployments.
type Registry struct {
	XMLName              xml.Name              `xml:"DeploymentRegistry" yaml:"-" toml:"-" json:"-"`
	PublishedDeployments []PublishedDeployment `xml:"PublishedDeployment" yaml:"published_deployments" toml:"published_deployments" json:"published_deployments" validate:"required,min=1,dive"`
}

// PublishedDeployment points at a Deployment manifest on a file host.
type PublishedDeployment struct {
	FileHost    FileHost `xml:"FileHost" yaml:"file_host" toml:"file_host" json:"file_host"`
	ManifestURI string   `xml:"ManifestUri" yaml:"manifest_uri" toml:"manifest_uri" json:"manifest_uri" validate:"required"`
}

// FileHost describes the server publishing manifests and files.
type FileHost struct {
	HostType               types.FileHostType `xml:"HostType" yaml:"host_type" toml:"host_type" json:"host_type" validate:"required,oneof=fileserver webserver"`
	RequiresAuthentication bool               `xml:"RequiresAuthentication" yaml:"requires_authentication" toml:"requires_authentication" json:"requires_authentication"`
}

// Deployment describes how and where an artifact is installed.
type Deployment struct {
	XMLName                 xml.Name                 `xml:"Deployment" yaml:"-" toml:"-" json:"-"`
	Description             Description              `xml:"Description" yaml:"description" toml:"description" json:"description"`
	Settings                Settings                 `xml:"Settings" yaml:"settings" toml:"settings" json:"settings"`
	RequiredOperatingSystem *RequiredOperatingSystem `xml:"RequiredOperatingSystem" yaml:"required_operating_system,omitempty" toml:"required_operating_system,omitempty" json:"required_operating_system,omitempty"`
	CompatibleFrameworks    []CompatibleFramework    `xml:"CompatibleFrameworks>CompatibleFramework" yaml:"compatible_frameworks,omitempty" toml:"compatible_frameworks,omitempty" json:"compatible_frameworks,omitempty" validate:"dive"`
	TargetHostBitness       types.Bitness            `xml:"TargetHostBitness" yaml:"target_host_bitness,omitempty" toml:"target_host_bitness,omitempty" json:"target_host_bitness,omitempty" validate:"omitempty,oneof=x86 x64"`
	ArtifactURI             string                   `xml:"ArtifactUri" yaml:"artifact_uri" toml:"artifact_uri" json:"artifact_uri" validate:"required"`
}

// Description identifies the organization publishing the artifact.
type Description struct {
	Manufacturer string `xml:"Manufacturer" yaml:"manufacturer" toml:"manufacturer" json:"manufacturer" validate:"required"`
	Product      string `xml:"Product" yaml:"product" toml:"product" json:"product" validate:"required"`
	Publisher    string `xml:"Publisher" yaml:"publisher" toml:"publisher" json:"publisher"`
}

// Settings groups installation scope and update policy.
type Settings struct {
	DeploymentBasis        types.DeploymentBasis `xml:"DeploymentBasis" yaml:"deployment_basis" toml:"deployment_basis" json:"deployment_basis" validate:"required,oneof=per-machine per-user"`
	MinimumRequiredVersion Version               `xml:"MinimumRequiredVersion" yaml:"minimum_required_version" toml:"minimum_required_version" json:"minimum_required_version"`
	UpdateBehavior         UpdateBehavior        `xml:"UpdateBehavior" yaml:"update_behavior" toml:"update_behavior" json:"update_behavior"`
	LoadBehavior           LoadBehavior          `xml:"LoadBehavior" yaml:"load_behavior" toml:"load_behavior" json:"load_behavior"`
}

// UpdateBehavior controls when and how updates are offered.
type UpdateBehavior struct {
	Mode                    types.UpdateMode `xml:"Mode" yaml:"mode" toml:"mode" json:"mode" validate:"required,oneof=forced optional"`
	NotifyClient            bool             `xml:"NotifyClient" yaml:"notify_client" toml:"notify_client" json:"notify_client"`
	RequiresRestart         bool             `xml:"RequiresRestart" yaml:"requires_restart" toml:"requires_restart" json:"requires_restart"`
	RemoveDeprecatedVersion bool             `xml:"RemoveDeprecatedVersion" yaml:"remove_deprecated_version" toml:"remove_deprecated_version" json:"remove_deprecated_version"`
	RealTime                bool             `xml:"DoInRealTime" yaml:"real_time" toml:"real_time" json:"real_time"`
	Expiration              *Expiration      `xml:"Expiration" yaml:"expiration,omitempty" toml:"expiration,omitempty" json:"expiration,omitempty"`
}

// Expiration is the reminder period for the timer-driven monitor.
type Expiration struct {
	MaximumAge uint32           `xml:"MaximumAge" yaml:"maximum_age" toml:"maximum_age" json:"maximum_age" validate:"gte=1"`
	UnitOfTime types.UnitOfTime `xml:"UnitOfTime" yaml:"unit_of_time" toml:"unit_of_time" json:"unit_of_time" validate:"required,oneof=minutes hours days weeks months"`
}

// LoadBehavior controls how the host picks the artifact up.
type LoadBehavior struct {
	// Install registers the artifact with the host instead of loading it for the session.
	Install bool `xml:"Install" yaml:"install" toml:"install" json:"install"`
	// AlwaysInstalled keeps the artifact registered when the host shuts down.
	AlwaysInstalled bool `xml:"AlwaysInstalled" yaml:"always_installed" toml:"always_installed" json:"always_installed"`
}

// RequiredOperatingSystem constrains the client operating system.
type RequiredOperatingSystem struct {
	Bitness        types.Bitness `xml:"Bitness" yaml:"bitness,omitempty" toml:"bitness,omitempty" json:"bitness,omitempty" validate:"omitempty,oneof=x86 x64"`
	Platform       string        `xml:"Platform" yaml:"platform,omitempty" toml:"platform,omitempty" json:"platform,omitempty"`
	Version        Version       `xml:"Version" yaml:"version,omitempty" toml:"version,omitempty" json:"version,omitempty"`
	MinimumVersion Version       `xml:"MinimumVersion" yaml:"minimum_version,omitempty" toml:"minimum_version,omitempty" json:"minimum_version,omitempty"`
}

// CompatibleFramework is a runtime the artifact needs.
type CompatibleFramework struct {
	SupportedRuntime string  `xml:"SupportedRuntime" yaml:"supported_runtime" toml:"supported_runtime" json:"supported_runtime" validate:"required"`
	TargetVersion    Version `xml:"TargetVersion" yaml:"target_version" toml:"target_version" json:"target_version"`
}

// Artifact is the versioned plugin file and everything shipped with it.
type Artifact struct {
	XMLName      xml.Name     `xml:"AddIn" yaml:"-" toml:"-" json:"-"`
	Identity     Identity     `xml:"Identity" yaml:"identity" toml:"identity" json:"identity"`
	URI          string       `xml:"Uri" yaml:"uri" toml:"uri" json:"uri" validate:"required"`
	Size         int64        `xml:"Size" yaml:"size" toml:"size" json:"size" validate:"gte=0"`
	Hash         *Hash        `xml:"Hash" yaml:"hash,omitempty" toml:"hash,omitempty" json:"hash,omitempty"`
	Dependencies []Dependency `xml:"Dependencies>Dependency" yaml:"dependencies,omitempty" toml:"dependencies,omitempty" json:"dependencies,omitempty" validate:"dive"`
	AssetFiles   []AssetFile  `xml:"AssetFiles>AssetFile" yaml:"asset_files,omitempty" toml:"asset_files,omitempty" json:"asset_files,omitempty" validate:"dive"`
}

// Identity names a versioned file.
type Identity struct {
	Name          string  `xml:"Name" yaml:"name" toml:"name" json:"name" validate:"required"`
	Title         string  `xml:"Title" yaml:"title" toml:"title" json:"title"`
	Version       Version `xml:"Version" yaml:"version" toml:"version" json:"version"`
	FileExtension string  `xml:"FileExtension" yaml:"file_extension" toml:"file_extension" json:"file_extension"`
}

// DisplayTitle returns the title, falling back to the name.
func (i Identity) DisplayTitle() string {
	if i.Title != "" {
		return i.Title
	}
	return i.Name
}

// Dependency is a file the artifact needs at runtime.
type Dependency struct {
	Identity   Identity    `xml:"Identity" yaml:"identity" toml:"identity" json:"identity"`
	URI        string      `xml:"Uri" yaml:"uri" toml:"uri" json:"uri" validate:"required"`
	Placement  Placement   `xml:"FilePlacement" yaml:"placement" toml:"placement" json:"placement"`
	Size       int64       `xml:"Size" yaml:"size" toml:"size" json:"size" validate:"gte=0"`
	Hash       *Hash       `xml:"Hash" yaml:"hash,omitempty" toml:"hash,omitempty" json:"hash,omitempty"`
	AssetFiles []AssetFile `xml:"AssetFiles>AssetFile" yaml:"asset_files,omitempty" toml:"asset_files,omitempty" json:"asset_files,omitempty" validate:"dive"`
}

// AssetFile is a data file shipped with an artifact or dependency.
type AssetFile struct {
	Name      string    `xml:"Name" yaml:"name" toml:"name" json:"name" validate:"required"`
	URI       string    `xml:"Uri" yaml:"uri" toml:"uri" json:"uri" validate:"required"`
	Placement Placement `xml:"FilePlacement" yaml:"placement" toml:"placement" json:"placement"`
	Size      int64     `xml:"Size" yaml:"size" toml:"size" json:"size" validate:"gte=0"`
	Hash      *Hash     `xml:"Hash" yaml:"hash,omitempty" toml:"hash,omitempty" json:"hash,omitempty"`
}

// Placement decides the directory a dependency or asset lands in.
type Placement struct {
	NextToArtifact bool   `xml:"NextToAddIn" yaml:"next_to_artifact" toml:"next_to_artifact" json:"next_to_artifact"`
	SubDirectory   string `xml:"SubDirectory" yaml:"sub_directory,omitempty" toml:"sub_directory,omitempty" json:"sub_directory,omitempty"`
}

// Hash is a declared content digest, hex or base64 encoded.
type Hash struct {
	Algorithm types.HashAlgorithm `xml:"Algorithm" yaml:"algorithm" toml:"algorithm" json:"algorithm" validate:"required,oneof=md5 sha1 sha256 sha384 sha512 blake3"`
	Value     string              `xml:"Value" yaml:"value" toml:"value" json:"value" validate:"required"`
}

// TotalSize returns the declared size of the artifact, its dependencies and all asset files.
func (a *Artifact) TotalSize() int64 {
	total := a.Size
	for _, d := range a.Dependencies {
		total += d.Size
		for _, f := range d.AssetFiles {
			total += f.Size
		}
	}
	for _, f := range a.AssetFiles {
		total += f.Size
	}
	return total
}

// UpdateQueryInfo is the durable per-artifact record of the last update check.
type UpdateQueryInfo struct {
	XMLName                xml.Name  `xml:"UpdateQueryInfo" yaml:"-" toml:"-" json:"-"`
	LastChecked            time.Time `xml:"LastChecked" yaml:"last_checked" json:"last_checked"`
	FirstNotified          time.Time `xml:"FirstNotified" yaml:"first_notified" json:"first_notified"`
	LastNotified           time.Time `xml:"LastNotified" yaml:"last_notified" json:"last_notified"`
	DeployedVersion        Version   `xml:"DeployedVersion" yaml:"deployed_version" json:"deployed_version"`
	AvailableVersion       Version   `xml:"AvailableVersion" yaml:"available_version" json:"available_version"`
	MinimumRequiredVersion Version   `xml:"MinimumRequiredVersion" yaml:"minimum_required_version" json:"minimum_required_version"`
	UpdateAvailable        bool      `xml:"UpdateAvailable" yaml:"update_available" json:"update_available"`
	IsMandatoryUpdate      bool      `xml:"IsMandatoryUpdate" yaml:"is_mandatory_update" json:"is_mandatory_update"`
	IsRestartRequired      bool      `xml:"IsRestartRequired" yaml:"is_restart_required" json:"is_restart_required"`
	Size                   int64     `xml:"Size" yaml:"size" json:"size"`
	// DependenciesPending is set when the primary artifact was finalized but its
	// dependencies or asset files were not all written.
	DependenciesPending bool `xml:"DependenciesPending" yaml:"dependencies_pending" json:"dependencies_pending"`
}
