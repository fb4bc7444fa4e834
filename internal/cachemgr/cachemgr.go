// Package cachemgr reconciles a set of watched directories into a
// content-addressed cache: any file at or above a size threshold is moved
// into the cache keyed by its SHA-256 digest and replaced at its original
// location with a symlink, with a JSON manifest recording the mapping.
// The Supervisor runs this as an optional startup step before the engine
// subprocess launches.
package cachemgr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/comfyendpoints/runtime/internal/logging"
)

// ManagedFile is one entry the manifest tracks: a file that has been (or
// already was) reconciled into the content-addressed cache.
type ManagedFile struct {
	SHA256      string   `json:"sha256"`
	Source      string   `json:"source"`
	CachePath   string   `json:"cache_path"`
	LinkedPaths []string `json:"linked_paths"`
	LastSeen    int64    `json:"last_seen"`
}

// Config points the manager at its cache root, the directories to scan,
// and the size floor below which files are left alone.
type Config struct {
	CacheRoot     string
	WatchPaths    []string
	MinFileSizeMB int64
	ManifestName  string
}

// Manager owns one cache root and its manifest file.
type Manager struct {
	cfg          Config
	cacheFiles   string
	manifestPath string
	mu           sync.Mutex
}

const defaultManifestName = "manifest.json"

// New constructs a Manager and ensures the cache root, files directory, and
// manifest file exist.
func New(cfg Config) (*Manager, error) {
	if cfg.ManifestName == "" {
		cfg.ManifestName = defaultManifestName
	}
	m := &Manager{
		cfg:          cfg,
		cacheFiles:   filepath.Join(cfg.CacheRoot, "files"),
		manifestPath: filepath.Join(cfg.CacheRoot, cfg.ManifestName),
	}
	if err := os.MkdirAll(m.cacheFiles, 0o755); err != nil {
		return nil, fmt.Errorf("cachemgr: create cache dir: %w", err)
	}
	if _, err := os.Stat(m.manifestPath); os.IsNotExist(err) {
		if err := os.WriteFile(m.manifestPath, []byte("{}"), 0o644); err != nil {
			return nil, fmt.Errorf("cachemgr: init manifest: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) loadManifest() (map[string]ManagedFile, error) {
	data, err := os.ReadFile(m.manifestPath)
	if err != nil {
		return nil, err
	}
	manifest := make(map[string]ManagedFile)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, err
		}
	}
	return manifest, nil
}

func (m *Manager) saveManifest(manifest map[string]ManagedFile) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.manifestPath, data, 0o644)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (m *Manager) cacheDestination(digest, originalName string) string {
	return filepath.Join(m.cacheFiles, digest+"_"+originalName)
}

// manageFile moves sourcePath into the cache (if not already cached) and
// replaces it with a symlink, mirroring the original's manage_file.
func (m *Manager) manageFile(sourcePath string) (ManagedFile, error) {
	info, err := os.Lstat(sourcePath)
	if err != nil {
		return ManagedFile{}, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(sourcePath)
		digest := "symlink"
		if err == nil {
			if sum, serr := sha256File(target); serr == nil {
				digest = sum
			}
		}
		return ManagedFile{
			SHA256:      digest,
			Source:      sourcePath,
			CachePath:   target,
			LinkedPaths: []string{sourcePath},
			LastSeen:    nowUnix(),
		}, nil
	}

	threshold := m.cfg.MinFileSizeMB * 1024 * 1024
	if info.Size() < threshold {
		return ManagedFile{}, fmt.Errorf("cachemgr: %s below size threshold", sourcePath)
	}

	digest, err := sha256File(sourcePath)
	if err != nil {
		return ManagedFile{}, err
	}

	dest := m.cacheDestination(digest, filepath.Base(sourcePath))
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		if err := os.Rename(sourcePath, dest); err != nil {
			return ManagedFile{}, fmt.Errorf("cachemgr: move %s to cache: %w", sourcePath, err)
		}
	} else {
		if err := os.Remove(sourcePath); err != nil {
			return ManagedFile{}, fmt.Errorf("cachemgr: remove duplicate %s: %w", sourcePath, err)
		}
	}

	if err := os.Symlink(dest, sourcePath); err != nil {
		return ManagedFile{}, fmt.Errorf("cachemgr: symlink %s -> %s: %w", sourcePath, dest, err)
	}

	return ManagedFile{
		SHA256:      digest,
		Source:      sourcePath,
		CachePath:   dest,
		LinkedPaths: []string{sourcePath},
		LastSeen:    nowUnix(),
	}, nil
}

// Reconcile walks every watch path, manages every file at or above the
// size threshold, and persists the updated manifest.
func (m *Manager) Reconcile() (map[string]ManagedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	manifest, err := m.loadManifest()
	if err != nil {
		return nil, err
	}

	for _, watchPath := range m.cfg.WatchPaths {
		if _, err := os.Stat(watchPath); err != nil {
			continue
		}
		err := filepath.WalkDir(watchPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.Size() < m.cfg.MinFileSizeMB*1024*1024 {
				return nil
			}
			managed, err := m.manageFile(path)
			if err != nil {
				logging.Op().Debug("cachemgr skip file", "path", path, "error", err)
				return nil
			}
			manifest[managed.SHA256] = managed
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cachemgr: walk %s: %w", watchPath, err)
		}
	}

	if err := m.saveManifest(manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func nowUnix() int64 { return time.Now().Unix() }
