package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/autodeploy/internal/types"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		Identity: Identity{
			Name:          "Pricing",
			Title:         "Pricing Tools",
			Version:       MustParseVersion("2.1.0"),
			FileExtension: "XLL",
		},
		URI:  "//share/addins/Pricing.xll",
		Size: 1024,
		Hash: &Hash{Algorithm: types.HashSHA256, Value: "abc123"},
		Dependencies: []Dependency{
			{
				Identity:  Identity{Name: "Pricing.Core", Version: MustParseVersion("1.0"), FileExtension: "dll"},
				URI:       "//share/addins/Pricing.Core.dll",
				Placement: Placement{NextToArtifact: true},
				Size:      512,
				AssetFiles: []AssetFile{
					{Name: "core.json", URI: "//share/addins/core.json", Size: 10},
				},
			},
		},
		AssetFiles: []AssetFile{
			{
				Name:      "rates.csv",
				URI:       "//share/addins/rates.csv",
				Placement: Placement{SubDirectory: "data"},
				Size:      64,
				Hash:      &Hash{Algorithm: types.HashBLAKE3, Value: "ff00"},
			},
		},
	}
}

func TestSerializeRoundTrip_Artifact(t *testing.T) {
	dir := t.TempDir()
	path := ArtifactRecordPath(dir, "Pricing")
	store := NewLocalStore()

	want := sampleArtifact()
	require.NoError(t, store.Serialize(want, path))

	got, err := ReadArtifactRecord(path)
	require.NoError(t, err)
	require.NotNil(t, got)

	// XMLName is populated on decode only.
	got.XMLName = want.XMLName
	assert.Equal(t, want, got)

	// Re-serializing the decoded value yields identical bytes.
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, store.Serialize(got, path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSerializeRoundTrip_UpdateQueryInfo(t *testing.T) {
	dir := t.TempDir()
	path := QueryInfoRecordPath(dir, "Pricing")
	store := NewLocalStore()

	now := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	want := &UpdateQueryInfo{
		LastChecked:            now,
		FirstNotified:          now.Add(-48 * time.Hour),
		LastNotified:           now.Add(-time.Hour),
		DeployedVersion:        MustParseVersion("1.0"),
		AvailableVersion:       MustParseVersion("2.0"),
		MinimumRequiredVersion: MustParseVersion("1.5"),
		UpdateAvailable:        true,
		IsMandatoryUpdate:      true,
		IsRestartRequired:      false,
		Size:                   4096,
		DependenciesPending:    true,
	}
	require.NoError(t, store.Serialize(want, path))

	got, err := ReadQueryInfoRecord(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	got.XMLName = want.XMLName
	assert.Equal(t, want, got)
}

func TestReadRecord_Missing(t *testing.T) {
	dir := t.TempDir()

	info, err := ReadQueryInfoRecord(QueryInfoRecordPath(dir, "Nothing"))
	assert.NoError(t, err)
	assert.Nil(t, info)

	artifact, err := ReadArtifactRecord(ArtifactRecordPath(dir, "Nothing"))
	assert.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestRecordPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("p", "Pricing-AddIn.manifest.xml"), ArtifactRecordPath("p", "Pricing"))
	assert.Equal(t, filepath.Join("p", "Pricing-UpdateQueryInfo.manifest.xml"), QueryInfoRecordPath("p", "Pricing"))
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		content string
		want    Format
	}{
		{"xml extension", "registry.xml", "", FormatXML},
		{"yaml extension", "registry.yml", "", FormatYAML},
		{"toml extension", "registry.toml", "", FormatTOML},
		{"json extension", "registry.json", "", FormatJSON},
		{"url with query", "https://cdn.example.com/registry.xml?sig=1", "", FormatXML},
		{"sniff xml", "registry", "<?xml version=\"1.0\"?><DeploymentRegistry/>", FormatXML},
		{"sniff json", "registry", `{"published_deployments": []}`, FormatJSON},
		{"sniff toml", "registry", "[[published_deployments]]\nmanifest_uri = \"x\"", FormatTOML},
		{"sniff yaml", "registry", "published_deployments:\n  - manifest_uri: x", FormatYAML},
		{"empty", "registry", "", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.source, []byte(tt.content)))
		})
	}
}

func TestDeserialize_Formats(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "deployment.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
description:
  manufacturer: Acme
  product: Pricing
settings:
  deployment_basis: per-user
  minimum_required_version: "1.5"
  update_behavior:
    mode: optional
    notify_client: true
    expiration:
      maximum_age: 2
      unit_of_time: days
artifact_uri: //share/Pricing.xml
`), 0644))

	xmlPath := filepath.Join(dir, "deployment.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(`<?xml version="1.0"?>
<Deployment>
  <Description><Manufacturer>Acme</Manufacturer><Product>Pricing</Product></Description>
  <Settings>
    <DeploymentBasis>per-user</DeploymentBasis>
    <MinimumRequiredVersion>1.5</MinimumRequiredVersion>
    <UpdateBehavior>
      <Mode>optional</Mode>
      <NotifyClient>true</NotifyClient>
      <Expiration><MaximumAge>2</MaximumAge><UnitOfTime>days</UnitOfTime></Expiration>
    </UpdateBehavior>
  </Settings>
  <ArtifactUri>//share/Pricing.xml</ArtifactUri>
</Deployment>`), 0644))

	store := NewLocalStore()
	for _, path := range []string{yamlPath, xmlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			d, err := Deserialize[Deployment](context.Background(), store, path)
			require.NoError(t, err)
			assert.Equal(t, "Acme", d.Description.Manufacturer)
			assert.Equal(t, types.DeploymentBasisPerUser, d.Settings.DeploymentBasis)
			assert.Equal(t, "1.5", d.Settings.MinimumRequiredVersion.String())
			assert.True(t, d.Settings.UpdateBehavior.NotifyClient)
			require.NotNil(t, d.Settings.UpdateBehavior.Expiration)
			assert.Equal(t, uint32(2), d.Settings.UpdateBehavior.Expiration.MaximumAge)
			assert.NoError(t, Validate("deployment", d))
		})
	}
}

func TestValidate_MissingFields(t *testing.T) {
	d := &Deployment{}
	err := Validate("deployment", d)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "deployment", verr.Kind)
	assert.NotEmpty(t, verr.Fields)
	assert.Contains(t, err.Error(), "ArtifactURI")
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, filepath.FromSlash("/srv/share/registry.xml"), LocalPath("file:///srv/share/registry.xml"))
	assert.Equal(t, filepath.FromSlash("//server/share/registry.xml"), LocalPath("file://server/share/registry.xml"))
	assert.Equal(t, "relative/registry.xml", LocalPath("relative/registry.xml"))
}

func TestTotalSize(t *testing.T) {
	assert.Equal(t, int64(1024+512+10+64), sampleArtifact().TotalSize())
}
