package ticket

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// MaxAttachmentSize is the upper bound on attachment size in bytes (5 MiB).
const MaxAttachmentSize = 5 << 20

// ErrAttachmentRejected marks an attachment that failed local policy.
// Rejected files are never sent to the storage collaborator.
var ErrAttachmentRejected = errors.New("attachment rejected")

// allowedContentTypes is the MIME allow-list for uploads.
var allowedContentTypes = map[string]struct{}{
	"image/png":      {},
	"image/jpeg":     {},
	"image/gif":      {},
	"image/webp":     {},
	"application/pdf": {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/plain": {},
}

// FileMeta describes a file about to be uploaded.
type FileMeta struct {
	FileName    string
	FileSize    int64
	ContentType string
}

// ValidateAttachment checks a prospective upload against the built-in
// size/MIME policy plus any configured filename block patterns (doublestar
// globs). Returns an error wrapping ErrAttachmentRejected on any violation.
func ValidateAttachment(meta FileMeta, blockedPatterns []string) error {
	if meta.FileName == "" {
		return fmt.Errorf("%w: file name is required", ErrAttachmentRejected)
	}
	if meta.FileSize <= 0 {
		return fmt.Errorf("%w: file is empty", ErrAttachmentRejected)
	}
	if meta.FileSize > MaxAttachmentSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrAttachmentRejected, meta.FileSize, MaxAttachmentSize)
	}
	if _, ok := allowedContentTypes[meta.ContentType]; !ok {
		return fmt.Errorf("%w: content type %q is not allowed", ErrAttachmentRejected, meta.ContentType)
	}

	for _, pattern := range blockedPatterns {
		match, err := doublestar.Match(pattern, meta.FileName)
		if err != nil {
			return fmt.Errorf("invalid blocked pattern %q: %w", pattern, err)
		}
		if match {
			return fmt.Errorf("%w: file name matches blocked pattern %q", ErrAttachmentRejected, pattern)
		}
	}

	return nil
}
