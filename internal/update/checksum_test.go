package update

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/types"
)

func TestVerifyHash(t *testing.T) {
	content := []byte("pricing add-in v2")
	sum := sha256.Sum256(content)

	corrupted := append([]byte(nil), content...)
	corrupted[3] ^= 0xff

	tests := []struct {
		name      string
		content   []byte
		declared  *manifest.Hash
		wantError bool
	}{
		{"no hash declared", content, nil, false},
		{"hex digest", content, &manifest.Hash{Algorithm: types.HashSHA256, Value: hex.EncodeToString(sum[:])}, false},
		{"padded hex digest", content, &manifest.Hash{Algorithm: types.HashSHA256, Value: "  " + hex.EncodeToString(sum[:]) + "\n"}, false},
		{"base64 digest", content, &manifest.Hash{Algorithm: types.HashSHA256, Value: base64.StdEncoding.EncodeToString(sum[:])}, false},
		{"corrupted byte", corrupted, &manifest.Hash{Algorithm: types.HashSHA256, Value: hex.EncodeToString(sum[:])}, true},
		{"garbage value", content, &manifest.Hash{Algorithm: types.HashSHA256, Value: "not-a-digest"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyHash("Pricing.xll", tt.content, tt.declared)
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			var integrity *IntegrityError
			require.ErrorAs(t, err, &integrity)
			assert.Equal(t, "Pricing.xll", integrity.Name)
		})
	}
}

func TestVerifyHash_AllAlgorithms(t *testing.T) {
	content := []byte("rates,2026\nEUR,1.08\n")

	for _, alg := range []types.HashAlgorithm{
		types.HashMD5, types.HashSHA1, types.HashSHA256,
		types.HashSHA384, types.HashSHA512, types.HashBLAKE3,
	} {
		t.Run(alg.String(), func(t *testing.T) {
			digest, err := ComputeHash(alg, content)
			require.NoError(t, err)
			assert.NoError(t, VerifyHash("rates.csv", content, &manifest.Hash{Algorithm: alg, Value: digest}))
			assert.Error(t, VerifyHash("rates.csv", append(content, '!'), &manifest.Hash{Algorithm: alg, Value: digest}))
		})
	}
}

func TestComputeHash_BLAKE3(t *testing.T) {
	// Digest of the empty input.
	digest, err := ComputeHash(types.HashBLAKE3, nil)
	require.NoError(t, err)
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", digest)
}

func TestComputeHash_UnsupportedAlgorithm(t *testing.T) {
	_, err := ComputeHash(types.HashAlgorithm("crc32"), []byte("x"))
	assert.Error(t, err)
}
