package imagesource

import (
	"fmt"
	"strings"
)

// MaxUploadBytes is the default upload ceiling
const MaxUploadBytes int64 = 5 * 1024 * 1024

// UploadPolicy gates uploaded files before any decoding
type UploadPolicy struct {
	MaxBytes int64
}

// DefaultUploadPolicy allows images up to 5 MB
var DefaultUploadPolicy = UploadPolicy{MaxBytes: MaxUploadBytes}

// Validate checks the MIME type, then the size
func (p UploadPolicy) Validate(size int64, mimeType string) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/") {
		return fmt.Errorf("%w: %q", ErrInvalidFileType, mimeType)
	}
	limit := p.MaxBytes
	if limit <= 0 {
		limit = MaxUploadBytes
	}
	if size > limit {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, limit)
	}
	return nil
}

// ValidateUpload applies DefaultUploadPolicy
func ValidateUpload(size int64, mimeType string) error {
	return DefaultUploadPolicy.Validate(size, mimeType)
}
