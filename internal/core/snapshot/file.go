package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/livetrack/livetrack/internal/core"
)

// FileSource re-reads a snapshot document from disk on every call.
// Files ending in .json are decoded as JSON, everything else as YAML.
type FileSource struct {
	Path string
}

// NewFileSource returns a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Snapshot reads and resolves the document.
func (f *FileSource) Snapshot(ctx context.Context) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}
	doc, err := ReadDocument(f.Path)
	if err != nil {
		return core.Snapshot{}, err
	}
	snapshot, _ := doc.Resolve()
	return snapshot, nil
}

// ReadDocument loads a snapshot document from path.
func ReadDocument(path string) (Document, error) {
	if strings.TrimSpace(path) == "" {
		return Document{}, fmt.Errorf("snapshot file path is empty")
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return Document{}, fmt.Errorf("read snapshot file: %w", err)
	}
	return DecodeDocument(data, filepath.Ext(path))
}

// DecodeDocument parses data as JSON when ext is ".json" and as YAML otherwise.
func DecodeDocument(data []byte, ext string) (Document, error) {
	var doc Document
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("decode snapshot json: %w", err)
		}
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot yaml: %w", err)
	}
	return doc, nil
}
