package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
)

// allowedImageTypes maps accepted evidence extensions to their content type
var allowedImageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateImageFile validates the uploaded file format and size
func ValidateImageFile(fileHeader *multipart.FileHeader) error {
	if fileHeader.Size > MaxFileSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	if fileHeader.Size == 0 {
		return &FileUploadError{Code: "EMPTY_FILE", Message: "File is empty"}
	}

	if _, ok := ImageContentType(fileHeader.Filename); !ok {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only PNG, JPEG and WEBP images are allowed",
		}
	}

	return nil
}

// ImageContentType returns the content type for an accepted image filename
func ImageContentType(filename string) (string, bool) {
	ct, ok := allowedImageTypes[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

// SafeFilename strips any directory part and replaces characters that
// would be awkward in an object key.
func SafeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 || base == "." || base == "/" {
		return "upload"
	}
	return b.String()
}
