package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	artifactRecordSuffix  = "-AddIn.manifest.xml"
	queryInfoRecordSuffix = "-UpdateQueryInfo.manifest.xml"
)

// ArtifactRecordPath returns the path of the deployed artifact manifest kept next to the artifact.
func ArtifactRecordPath(parentDir, artifactName string) string {
	return filepath.Join(parentDir, artifactName+artifactRecordSuffix)
}

// QueryInfoRecordPath returns the path of the persisted UpdateQueryInfo for an artifact.
func QueryInfoRecordPath(parentDir, artifactName string) string {
	return filepath.Join(parentDir, artifactName+queryInfoRecordSuffix)
}

// ReadArtifactRecord loads the deployed artifact manifest. Returns (nil, nil) if none exists.
func ReadArtifactRecord(path string) (*Artifact, error) {
	var a Artifact
	if err := readRecord(path, &a); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ReadQueryInfoRecord loads the persisted UpdateQueryInfo. Returns (nil, nil) if none exists.
func ReadQueryInfoRecord(path string) (*UpdateQueryInfo, error) {
	var info UpdateQueryInfo
	if err := readRecord(path, &info); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &info, nil
}

func readRecord(path string, v any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := Decode(content, FormatXML, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
