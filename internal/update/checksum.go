package update

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/types"
)

// IntegrityError reports a downloaded file whose digest does not match its manifest.
type IntegrityError struct {
	Name      string
	Algorithm types.HashAlgorithm
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s digest does not match the manifest", e.Name, e.Algorithm)
}

// NewHasher returns a hash.Hash for the algorithm.
func NewHasher(algorithm types.HashAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case types.HashMD5:
		return md5.New(), nil
	case types.HashSHA1:
		return sha1.New(), nil
	case types.HashSHA256:
		return sha256.New(), nil
	case types.HashSHA384:
		return sha512.New384(), nil
	case types.HashSHA512:
		return sha512.New(), nil
	case types.HashBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm '%s'", algorithm)
	}
}

// ComputeHash returns the lowercase hex digest of content.
func ComputeHash(algorithm types.HashAlgorithm, content []byte) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyHash checks content against the declared hash. The declared value may be hex
// or standard base64. A mismatch returns an *IntegrityError.
func VerifyHash(name string, content []byte, declared *manifest.Hash) error {
	if declared == nil {
		return nil
	}

	h, err := NewHasher(declared.Algorithm)
	if err != nil {
		return fmt.Errorf("verify %s: %w", name, err)
	}
	_, _ = h.Write(content)
	actual := h.Sum(nil)

	expected, ok := decodeDigest(declared.Value, len(actual))
	if !ok || subtle.ConstantTimeCompare(actual, expected) != 1 {
		return &IntegrityError{Name: name, Algorithm: declared.Algorithm}
	}
	return nil
}

func decodeDigest(value string, size int) ([]byte, bool) {
	value = strings.TrimSpace(value)
	if b, err := hex.DecodeString(value); err == nil && len(b) == size {
		return b, true
	}
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && len(b) == size {
		return b, true
	}
	return nil, false
}
