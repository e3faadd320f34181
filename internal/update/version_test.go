package update

import (
	"errors"
	"testing"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/types"
)

func TestIsNewVersionAvailable(t *testing.T) {
	versions := []string{"0.9", "1.0", "1.0.1", "1.2.0-rc.1", "1.2.0", "2.0", "2.0.0.1", "10.0"}

	for i, a := range versions {
		for j, b := range versions {
			va := manifest.MustParseVersion(a)
			vb := manifest.MustParseVersion(b)

			got := IsNewVersionAvailable(va, vb)
			if got != (i < j) {
				t.Errorf("IsNewVersionAvailable(%s, %s) = %v, want %v", a, b, got, i < j)
			}
			// Antisymmetric: never true in both directions.
			if got && IsNewVersionAvailable(vb, va) {
				t.Errorf("IsNewVersionAvailable is true both ways for %s and %s", a, b)
			}
		}
	}
}

func TestIsNewVersionAvailable_NothingDeployed(t *testing.T) {
	if !IsNewVersionAvailable(manifest.Version{}, manifest.MustParseVersion("0.1")) {
		t.Error("any version should be newer than no version")
	}
}

func TestIsMandatoryUpdate(t *testing.T) {
	tests := []struct {
		name     string
		deployed string
		mode     types.UpdateMode
		minimum  string
		want     bool
	}{
		{"forced mode", "2.0", types.UpdateModeForced, "", true},
		{"below minimum", "1.0", types.UpdateModeOptional, "2.0", true},
		{"at minimum", "2.0", types.UpdateModeOptional, "2.0", false},
		{"no minimum", "1.0", types.UpdateModeOptional, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := manifest.Settings{UpdateBehavior: manifest.UpdateBehavior{Mode: tt.mode}}
			if tt.minimum != "" {
				settings.MinimumRequiredVersion = manifest.MustParseVersion(tt.minimum)
			}
			got := IsMandatoryUpdate(manifest.MustParseVersion(tt.deployed), settings)
			if got != tt.want {
				t.Errorf("IsMandatoryUpdate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRestartRequired(t *testing.T) {
	tests := []struct {
		name            string
		requiresRestart bool
		probe           ActivityProbe
		want            bool
	}{
		{"flag set", true, &fakeActivity{active: false}, true},
		{"artifact active", false, &fakeActivity{active: true}, true},
		{"inactive", false, &fakeActivity{active: false}, false},
		{"probe error", false, &fakeActivity{err: errors.New("no host")}, true},
		{"no probe", false, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPayload(t, "1.0")
			p.Deployment.Settings.UpdateBehavior.RequiresRestart = tt.requiresRestart
			if got := IsRestartRequired(p, tt.probe); got != tt.want {
				t.Errorf("IsRestartRequired() = %v, want %v", got, tt.want)
			}
		})
	}
}
