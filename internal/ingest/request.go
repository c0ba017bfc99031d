package ingest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// FromRequest spools the multipart file stored under key to a temporary
// file. The returned File points at the spooled copy; callers remove it if
// ingestion does not happen.
func FromRequest(r *http.Request, key string) (File, error) {
	src, header, err := r.FormFile(key)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return File{}, fmt.Errorf("%w: %q", ErrRequestFileMissing, key)
		}
		return File{}, fmt.Errorf("failed to read form file: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "media-upload-*")
	if err != nil {
		return File{}, fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return File{}, fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return File{}, fmt.Errorf("failed to spool upload: %w", err)
	}

	return File{
		Path:     tmp.Name(),
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
	}, nil
}
