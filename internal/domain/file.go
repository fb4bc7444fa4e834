package domain

import "time"

// FileSource distinguishes blobs uploaded by a client from blobs generated
// by a job's output nodes.
type FileSource string

const (
	SourceUploaded FileSource = "uploaded"
	SourceGenerated FileSource = "generated"
)

// FileRecord is an immutable metadata row for one stored blob. The blob
// itself lives on disk named "<file_id><ext>" under a single flat
// directory; StoragePath is derived and never exposed externally.
type FileRecord struct {
	FileID       string     `json:"file_id"`
	MediaType    string     `json:"media_type"`
	SizeBytes    int64      `json:"size_bytes"`
	SHA256Hex    string     `json:"sha256_hex"`
	Source       FileSource `json:"source"`
	AppID        string     `json:"app_id,omitempty"`
	OriginalName string     `json:"original_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StoragePath  string     `json:"-"`
	CursorID     int64      `json:"-"`
}

// FileFilter narrows a list_files call; zero-valued fields are not applied.
// All non-zero fields combine with AND.
type FileFilter struct {
	MediaType string
	Source    FileSource
	AppID     string
}

// canonicalExtensions maps well-known media types to their default blob
// extension, used when original_name carries none.
var canonicalExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
}

// CanonicalExtension returns the default extension for mediaType, or "" if unknown.
func CanonicalExtension(mediaType string) string {
	return canonicalExtensions[mediaType]
}
