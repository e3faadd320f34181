package types

import (
	"testing"
)

func TestDeploymentBasisValidate(t *testing.T) {
	tests := []struct {
		name    string
		b       DeploymentBasis
		wantErr bool
	}{
		{"per-machine valid", DeploymentBasisPerMachine, false},
		{"per-user valid", DeploymentBasisPerUser, false},
		{"empty invalid", "", true},
		{"invalid value", "global", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("DeploymentBasis.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDeploymentBasis(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DeploymentBasis
		wantErr bool
	}{
		{"dashed", "per-machine", DeploymentBasisPerMachine, false},
		{"camel case", "PerMachine", DeploymentBasisPerMachine, false},
		{"per user upper", "PERUSER", DeploymentBasisPerUser, false},
		{"empty", "", "", true},
		{"invalid", "everyone", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeploymentBasis(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDeploymentBasis() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseDeploymentBasis() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateModeHelpers(t *testing.T) {
	if !UpdateModeForced.IsForced() {
		t.Error("forced.IsForced() should be true")
	}
	if UpdateModeOptional.IsForced() {
		t.Error("optional.IsForced() should be false")
	}
	if _, err := ParseUpdateMode("sometimes"); err == nil {
		t.Error("ParseUpdateMode(sometimes) should fail")
	}
}

func TestFileHostTypeHelpers(t *testing.T) {
	h, err := ParseFileHostType(" FileServer ")
	if err != nil {
		t.Fatalf("ParseFileHostType() error = %v", err)
	}
	if !h.IsFileServer() || h.IsWebServer() {
		t.Errorf("ParseFileHostType() = %v, want fileserver", h)
	}
}

func TestParseBitness(t *testing.T) {
	tests := []struct {
		input   string
		want    Bitness
		wantErr bool
	}{
		{"x64", Bitness64, false},
		{"amd64", Bitness64, false},
		{"aarch64", Bitness64, false},
		{"x86", Bitness32, false},
		{"i686", Bitness32, false},
		{"", BitnessUnknown, false},
		{"x128", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBitness(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBitness() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseBitness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseHashAlgorithm(t *testing.T) {
	tests := []struct {
		input   string
		want    HashAlgorithm
		wantErr bool
	}{
		{"SHA-256", HashSHA256, false},
		{"sha512", HashSHA512, false},
		{"BLAKE3", HashBLAKE3, false},
		{"crc32", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHashAlgorithm(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseHashAlgorithm() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseHashAlgorithm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllUnitsOfTimeValidate(t *testing.T) {
	for _, u := range AllUnitsOfTime() {
		if err := u.Validate(); err != nil {
			t.Errorf("%s.Validate() error = %v", u, err)
		}
	}
	if err := UnitOfTime("fortnights").Validate(); err == nil {
		t.Error("fortnights.Validate() should fail")
	}
}

func TestParseNotifyMode(t *testing.T) {
	got, err := ParseNotifyMode("")
	if err != nil {
		t.Fatalf("ParseNotifyMode() error = %v", err)
	}
	if got != NotifyPrompt {
		t.Errorf("ParseNotifyMode(\"\") = %v, want %v", got, NotifyPrompt)
	}
	if _, err := ParseNotifyMode("maybe"); err == nil {
		t.Error("ParseNotifyMode(maybe) should fail")
	}
}
