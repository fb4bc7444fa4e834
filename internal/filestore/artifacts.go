package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func sanitizeArtifactName(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	return name
}

// WriteArtifact stores one file per contract output under
// <artifacts_dir>/<job_id>/<sanitized_name>. String values
// are written verbatim as UTF-8; everything else is written as compact
// JSON. The artifacts subsystem is append-only.
func (s *Store) WriteArtifact(jobID, name string, value any) error {
	dir, err := s.ArtifactDir(jobID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, sanitizeArtifactName(name))

	var data []byte
	if str, ok := value.(string); ok {
		data = []byte(str)
	} else {
		data, err = json.Marshal(value)
		if err != nil {
			return fmt.Errorf("filestore: marshal artifact %s: %w", name, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write artifact %s: %w", name, err)
	}
	return nil
}

// ReadArtifacts returns every artifact currently written for jobID, keyed
// by filename. Each value is JSON-decoded when possible, falling back to
// the raw string. Callers poll this until the expected name set is
// a subset of the keys.
func (s *Store) ReadArtifacts(jobID string) (map[string]any, error) {
	dir, err := s.ArtifactDir(jobID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("filestore: read artifact dir: %w", err)
	}

	result := make(map[string]any, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("filestore: read artifact %s: %w", e.Name(), err)
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err == nil {
			result[e.Name()] = decoded
		} else {
			result[e.Name()] = string(data)
		}
	}
	return result, nil
}
