package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a manifest document.
type Format int

const (
	FormatUnknown Format = iota
	FormatXML
	FormatYAML
	FormatTOML
	FormatJSON
)

// String returns the lowercase format name.
func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Fetcher reads the raw bytes behind a manifest path or URI.
type Fetcher interface {
	DownloadBytes(ctx context.Context, source string) ([]byte, error)
}

// Store reads manifests from a path or URI and writes persisted records.
type Store interface {
	Deserialize(ctx context.Context, source string, v any) error
	Serialize(v any, path string) error
}

// FileStore is the default Store. Reads go through the Fetcher when one is set,
// otherwise through the local filesystem. Writes are always local XML.
type FileStore struct {
	fetcher Fetcher
}

// NewFileStore creates a store that reads remote sources with fetcher.
func NewFileStore(fetcher Fetcher) *FileStore {
	return &FileStore{fetcher: fetcher}
}

// NewLocalStore creates a store that only reads local files.
func NewLocalStore() *FileStore {
	return &FileStore{}
}

// Deserialize reads source and decodes it into v. The format is taken from the
// extension, or sniffed from the content when the extension is not recognized.
func (s *FileStore) Deserialize(ctx context.Context, source string, v any) error {
	var (
		content []byte
		err     error
	)
	if s.fetcher != nil {
		content, err = s.fetcher.DownloadBytes(ctx, source)
	} else {
		content, err = os.ReadFile(LocalPath(source))
	}
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", source, err)
	}

	format := DetectFormat(source, content)
	if format == FormatUnknown {
		return fmt.Errorf("unable to detect manifest format for %s", source)
	}
	if err := Decode(content, format, v); err != nil {
		return fmt.Errorf("decode manifest %s: %w", source, err)
	}
	return nil
}

// Serialize writes v as indented XML to path, replacing any existing file atomically.
func (s *FileStore) Serialize(v any, path string) error {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	content := append([]byte(xml.Header), body...)
	content = append(content, '\n')
	return writeFileAtomic(path, content)
}

// Deserialize decodes source into a new T.
func Deserialize[T any](ctx context.Context, store Store, source string) (*T, error) {
	var v T
	if err := store.Deserialize(ctx, source, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Decode decodes content in the given format into v.
func Decode(content []byte, format Format, v any) error {
	switch format {
	case FormatXML:
		if err := xml.Unmarshal(content, v); err != nil {
			return fmt.Errorf("XML parse error: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(content, v); err != nil {
			return fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, v); err != nil {
			return fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, v); err != nil {
			return fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return fmt.Errorf("unknown manifest format")
	}
	return nil
}

// DetectFormat determines the manifest format based on extension or content.
func DetectFormat(source string, content []byte) Format {
	name := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		name = u.Path
	}

	switch strings.ToLower(path.Ext(filepath.ToSlash(name))) {
	case ".xml":
		return FormatXML
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := bytes.TrimSpace(content)
	switch {
	case len(trimmed) == 0:
		return FormatUnknown
	case trimmed[0] == '<':
		return FormatXML
	case trimmed[0] == '{':
		return FormatJSON
	}

	for _, line := range strings.Split(string(trimmed), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") || strings.Contains(line, " = ") {
			return FormatTOML
		}
		if strings.Contains(line, ":") {
			return FormatYAML
		}
	}
	return FormatUnknown
}

// LocalPath converts a file:// URI to a filesystem path. Other values are returned unchanged.
func LocalPath(source string) string {
	if !strings.HasPrefix(strings.ToLower(source), "file://") {
		return source
	}
	u, err := url.Parse(source)
	if err != nil {
		return source
	}
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		// UNC share: file://server/share/dir -> //server/share/dir
		p = "//" + u.Host + p
	}
	// file:///C:/dir -> C:/dir
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

// writeFileAtomic writes content to a temp file in the target directory and renames it into place.
func writeFileAtomic(target string, content []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".*"+filepath.Base(target))
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if _, err := os.Stat(tmpName); err == nil {
			if err := os.Remove(tmpName); err != nil {
				log.Warnf("failed to remove temp file %s: %v", tmpName, err)
			}
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("set permissions on %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("move %s to %s: %w", tmpName, target, err)
	}
	return nil
}
