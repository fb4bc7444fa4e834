package resolver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/logging"
)

// reconcileSymlinks ensures the engine's expected models directory is a
// symlink into the cache directory. If a real
// directory already exists there, its contents are moved into the cache
// first so nothing already on disk is lost.
func (r *Resolver) reconcileSymlinks() error {
	if r.cfg.EngineModelsDir == "" {
		return nil
	}
	for subdir := range domain.ValidModelSubdirs {
		if err := r.reconcileOneSubdir(subdir); err != nil {
			return fmt.Errorf("subdir %s: %w", subdir, err)
		}
	}
	return nil
}

func (r *Resolver) reconcileOneSubdir(subdir domain.ModelSubdir) error {
	enginePath := filepath.Join(r.cfg.EngineModelsDir, string(subdir))
	cachePath := filepath.Join(r.cfg.CacheModelsRoot, string(subdir))

	if err := os.MkdirAll(cachePath, 0o755); err != nil {
		return err
	}

	info, err := os.Lstat(enginePath)
	switch {
	case os.IsNotExist(err):
		return os.Symlink(cachePath, enginePath)
	case err != nil:
		return err
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(enginePath)
		if err == nil && target == cachePath {
			return nil
		}
		if err := os.Remove(enginePath); err != nil {
			return err
		}
		return os.Symlink(cachePath, enginePath)
	case info.IsDir():
		if err := migrateDirContents(enginePath, cachePath); err != nil {
			return err
		}
		if err := os.RemoveAll(enginePath); err != nil {
			return err
		}
		return os.Symlink(cachePath, enginePath)
	default:
		return fmt.Errorf("%s exists and is not a directory or symlink", enginePath)
	}
}

// migrateDirContents moves every entry from src into dst, overwriting
// nothing already present under dst.
func migrateDirContents(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if _, err := os.Stat(dstPath); err == nil {
			logging.Op().Debug("symlink reconciliation: skip already-cached file", "path", dstPath)
			continue
		}
		if err := os.Rename(srcPath, dstPath); err != nil {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
