package filestore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/comfyendpoints/runtime/internal/domain"
)

// ErrEmptyContent is returned by CreateFile when content has zero length.
var ErrEmptyContent = errors.New("filestore: empty content")

// ErrNotFound is returned by GetFile when no row matches the given id.
var ErrNotFound = errors.New("filestore: not found")

// NewFileID returns a fresh opaque file id: "fid_" followed by 32 lowercase
// hex characters.
func NewFileID() string {
	id := uuid.New()
	return "fid_" + hex.EncodeToString(id[:])
}

func sanitizeBasename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return base
}

func extensionFor(originalName, mediaType string) string {
	if originalName != "" {
		if ext := filepath.Ext(originalName); ext != "" {
			return ext
		}
	}
	return domain.CanonicalExtension(mediaType)
}

// CreateFile writes content to a new blob and inserts its metadata row.
// The blob write completes before the row becomes visible to GetFile.
func (s *Store) CreateFile(content []byte, mediaType string, source domain.FileSource, appID, originalName string) (*domain.FileRecord, error) {
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}

	sanitized := sanitizeBasename(originalName)
	ext := extensionFor(sanitized, mediaType)
	sum := sha256.Sum256(content)
	shaHex := hex.EncodeToString(sum[:])
	fileID := NewFileID()
	storagePath := s.BlobPath(fileID, ext)

	if err := os.WriteFile(storagePath, content, 0o644); err != nil {
		return nil, fmt.Errorf("filestore: write blob: %w", err)
	}

	rec := &domain.FileRecord{
		FileID:       fileID,
		MediaType:    mediaType,
		SizeBytes:    int64(len(content)),
		SHA256Hex:    shaHex,
		Source:       source,
		AppID:        appID,
		OriginalName: sanitized,
		CreatedAt:    time.Now().UTC(),
		StoragePath:  storagePath,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.write.Exec(
		`INSERT INTO files (file_id, media_type, size_bytes, sha256_hex, source, app_id, original_name, created_at, storage_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FileID, rec.MediaType, rec.SizeBytes, rec.SHA256Hex, string(rec.Source), rec.AppID, rec.OriginalName,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.StoragePath,
	)
	if err != nil {
		os.Remove(storagePath)
		return nil, fmt.Errorf("filestore: insert file row: %w", err)
	}
	cursorID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("filestore: read cursor id: %w", err)
	}
	rec.CursorID = cursorID
	return rec, nil
}

// GetFile returns the file record for fileID, or ErrNotFound.
func (s *Store) GetFile(fileID string) (*domain.FileRecord, error) {
	row := s.read.QueryRow(
		`SELECT cursor_id, file_id, media_type, size_bytes, sha256_hex, source, app_id, original_name, created_at, storage_path
		 FROM files WHERE file_id = ?`, fileID,
	)
	rec, err := scanFileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: get file: %w", err)
	}
	return rec, nil
}

// ReadBlob returns the raw bytes of fileID's blob.
func (s *Store) ReadBlob(rec *domain.FileRecord) ([]byte, error) {
	return os.ReadFile(rec.StoragePath)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRow(row rowScanner) (*domain.FileRecord, error) {
	var rec domain.FileRecord
	var source, createdAt string
	if err := row.Scan(&rec.CursorID, &rec.FileID, &rec.MediaType, &rec.SizeBytes, &rec.SHA256Hex,
		&source, &rec.AppID, &rec.OriginalName, &createdAt, &rec.StoragePath); err != nil {
		return nil, err
	}
	rec.Source = domain.FileSource(source)
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t
	return &rec, nil
}

const (
	minLimit     = 1
	maxLimit     = 200
	defaultLimit = 50
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit < minLimit {
		return minLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ListFiles returns records in strictly descending cursor_id order, newest
// first. cursor, when non-zero, restricts the page to cursor_id < cursor
// (the smallest cursor_id of the previous page). next_cursor is returned
// iff a limit+1'th row existed.
func (s *Store) ListFiles(limit int, cursor int64, filter domain.FileFilter) ([]*domain.FileRecord, *int64, error) {
	limit = clampLimit(limit)

	query := `SELECT cursor_id, file_id, media_type, size_bytes, sha256_hex, source, app_id, original_name, created_at, storage_path
	           FROM files WHERE 1=1`
	args := []any{}
	if cursor > 0 {
		query += " AND cursor_id < ?"
		args = append(args, cursor)
	}
	if filter.MediaType != "" {
		query += " AND media_type = ?"
		args = append(args, filter.MediaType)
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, string(filter.Source))
	}
	if filter.AppID != "" {
		query += " AND app_id = ?"
		args = append(args, filter.AppID)
	}
	query += " ORDER BY cursor_id DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.read.Query(query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("filestore: list files: %w", err)
	}
	defer rows.Close()

	var records []*domain.FileRecord
	for rows.Next() {
		rec, err := scanFileRow(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("filestore: scan file row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *int64
	if len(records) > limit {
		last := records[limit-1]
		nc := last.CursorID
		nextCursor = &nc
		records = records[:limit]
	}
	return records, nextCursor, nil
}
