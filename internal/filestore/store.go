// Package filestore implements the content-addressed blob store and the
// relational metadata index backing it: file records with cursor-based
// pagination, per-job artifact files, and the job lifecycle table.
//
// # Contract
//
// Store owns every blob under its root directory and the single sqlite
// index file describing it. Blob writes complete before their row becomes
// visible to readers; a single writer connection serializes mutations while
// a separate read-only pool (WAL mode) lets readers proceed unblocked.
package filestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the File Store: a blob directory, an artifacts directory, and a
// sqlite-backed metadata index covering files and jobs.
type Store struct {
	root         string
	blobsDir     string
	artifactsDir string

	writeMu sync.Mutex
	write   *sql.DB
	read    *sql.DB
}

// Open creates (if necessary) the on-disk layout under root and opens the
// metadata index: "<root>/files/..." for uploaded/generated blobs and
// "<root>/artifacts/<job_id>/..." for per-job output artifacts.
func Open(root string) (*Store, error) {
	blobsDir := filepath.Join(root, "files")
	artifactsDir := filepath.Join(root, "artifacts")
	for _, dir := range []string{root, blobsDir, artifactsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("filestore: mkdir %s: %w", dir, err)
		}
	}

	indexPath := filepath.Join(root, "index.sqlite3")
	dsn := "file:" + indexPath + "?_journal_mode=WAL&_busy_timeout=5000"

	write, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("filestore: open write conn: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite3", dsn+"&mode=ro")
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("filestore: open read pool: %w", err)
	}

	s := &Store{root: root, blobsDir: blobsDir, artifactsDir: artifactsDir, write: write, read: read}
	if err := s.initSchema(); err != nil {
		write.Close()
		read.Close()
		return nil, err
	}
	return s, nil
}

// Close releases both database connections.
func (s *Store) Close() error {
	rErr := s.read.Close()
	wErr := s.write.Close()
	if wErr != nil {
		return wErr
	}
	return rErr
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS files (
	cursor_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id        TEXT NOT NULL UNIQUE,
	media_type     TEXT NOT NULL,
	size_bytes     INTEGER NOT NULL,
	sha256_hex     TEXT NOT NULL,
	source         TEXT NOT NULL,
	app_id         TEXT NOT NULL DEFAULT '',
	original_name  TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	storage_path   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_media_type ON files(media_type);
CREATE INDEX IF NOT EXISTS idx_files_source ON files(source);
CREATE INDEX IF NOT EXISTS idx_files_app_id ON files(app_id);

CREATE TABLE IF NOT EXISTS jobs (
	job_id           TEXT PRIMARY KEY,
	state            TEXT NOT NULL,
	input_payload    TEXT NOT NULL,
	output_payload   TEXT,
	error            TEXT NOT NULL DEFAULT '',
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	prompt_id        TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);
`
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.write.Exec(schema)
	if err != nil {
		return fmt.Errorf("filestore: init schema: %w", err)
	}
	return nil
}

// BlobPath returns the on-disk path a blob for fileID with the given
// extension would occupy.
func (s *Store) BlobPath(fileID, ext string) string {
	return filepath.Join(s.blobsDir, fileID+ext)
}

// ArtifactDir returns the per-job artifact directory, creating it if absent.
func (s *Store) ArtifactDir(jobID string) (string, error) {
	dir := filepath.Join(s.artifactsDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("filestore: mkdir artifact dir: %w", err)
	}
	return dir, nil
}
