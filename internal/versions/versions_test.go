package versions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adamancini/autodeploy/internal/manifest"
)

func makeVersions(t *testing.T, parent string, names ...string) {
	t.Helper()
	for _, name := range names {
		dir := filepath.Join(parent, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "rates.csv"), []byte("a,b\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestManager_List(t *testing.T) {
	parent := t.TempDir()
	makeVersions(t, parent, "1.0", "2.0", "1.10", "Temp", "data")
	manager := NewManager(parent, manifest.MustParseVersion("2.0"))

	versions, err := manager.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"2.0", "1.10", "1.0"}
	if len(versions) != len(want) {
		t.Fatalf("List() returned %d versions, want %d", len(versions), len(want))
	}
	for i, v := range versions {
		if v.Version.String() != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, v.Version, want[i])
		}
		if v.Size != 4 {
			t.Errorf("List()[%d].Size = %d, want 4", i, v.Size)
		}
	}
	if !versions[0].Current {
		t.Error("2.0 should be marked current")
	}
}

func TestManager_ListMissingParent(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing"), manifest.Version{})
	versions, err := manager.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("List() = %v, want empty", versions)
	}
}

func TestManager_Delete(t *testing.T) {
	parent := t.TempDir()
	makeVersions(t, parent, "1.0", "2.0")
	manager := NewManager(parent, manifest.MustParseVersion("2.0"))

	if err := manager.Delete(manifest.MustParseVersion("2.0")); err == nil {
		t.Error("Delete() of the deployed version should fail")
	}
	if err := manager.Delete(manifest.MustParseVersion("3.0")); err == nil {
		t.Error("Delete() of a missing version should fail")
	}
	if err := manager.Delete(manifest.MustParseVersion("1.0")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "1.0")); !os.IsNotExist(err) {
		t.Error("1.0 should be gone")
	}
}

func TestManager_RemoveDeprecated(t *testing.T) {
	parent := t.TempDir()
	makeVersions(t, parent, "1.0", "2.0")
	manager := NewManager(parent, manifest.MustParseVersion("2.0"))

	tests := []struct {
		name    string
		version manifest.Version
	}{
		{"superseded", manifest.MustParseVersion("1.0")},
		{"already removed", manifest.MustParseVersion("1.0")},
		{"current", manifest.MustParseVersion("2.0")},
		{"none", manifest.Version{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := manager.RemoveDeprecated(tt.version); err != nil {
				t.Errorf("RemoveDeprecated() error = %v", err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(parent, "2.0")); err != nil {
		t.Error("the deployed version must survive")
	}
}
