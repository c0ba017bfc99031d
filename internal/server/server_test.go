package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/media-library/internal/conversion"
	"github.com/pavel-fokin/media-library/internal/ingest"
	"github.com/pavel-fokin/media-library/internal/signing"
	"github.com/pavel-fokin/media-library/internal/sqlite"
	"github.com/pavel-fokin/media-library/internal/storage"
)

func TestHealthz(t *testing.T) {
	req, err := http.NewRequest("GET", "/healthz", nil)
	assert.NoError(t, err)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(healthz)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		token        string
		header       string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "valid token",
			token:        "secret",
			header:       "Bearer secret",
			expectedCode: http.StatusOK,
			expectedBody: "",
		},
		{
			name:         "invalid token",
			token:        "secret",
			header:       "Bearer wrong",
			expectedCode: http.StatusUnauthorized,
			expectedBody: "Unauthorized\n",
		},
		{
			name:         "no header",
			token:        "secret",
			header:       "",
			expectedCode: http.StatusUnauthorized,
			expectedBody: "Unauthorized\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("GET", "/", nil)
			assert.NoError(t, err)
			req.Header.Set("Authorization", tt.header)

			rr := httptest.NewRecorder()
			handler := auth(tt.token, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedCode, rr.Code)
			assert.Equal(t, tt.expectedBody, rr.Body.String())
		})
	}
}

func TestLimitBodyMiddleware(t *testing.T) {
	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := limitBody(readAll, 10, 20)

	t.Run("body within limit", func(t *testing.T) {
		req, err := http.NewRequest("PUT", "/", strings.NewReader("123456789"))
		assert.NoError(t, err)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("body exceeds limit", func(t *testing.T) {
		req, err := http.NewRequest("PUT", "/", strings.NewReader("12345678901"))
		assert.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("multipart body uses the upload limit", func(t *testing.T) {
		req, err := http.NewRequest("POST", "/", strings.NewReader("12345678901"))
		assert.NoError(t, err)
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("multipart body exceeds upload limit", func(t *testing.T) {
		req, err := http.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 21)))
		assert.NoError(t, err)
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("multipart body without upload limit", func(t *testing.T) {
		unlimited := limitBody(readAll, 10, 0)
		req, err := http.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 1000)))
		assert.NoError(t, err)
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		rr := httptest.NewRecorder()
		unlimited.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err          error
		expectedCode int
	}{
		{ingest.ErrSubjectNotPersisted, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: /tmp/x", ingest.ErrSourceFileMissing), http.StatusBadRequest},
		{ingest.ErrRequestFileMissing, http.StatusBadRequest},
		{fmt.Errorf("%w: %q", ingest.ErrUnknownDisk, "nope"), http.StatusBadRequest},
		{fmt.Errorf("%w: 11 bytes", ingest.ErrFileTooLarge), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: %q", conversion.ErrUnknownConversion, "thumb"), http.StatusNotFound},
		{sqlite.ErrNotFound, http.StatusNotFound},
		{signing.ErrInvalidSignature, http.StatusForbidden},
		{signing.ErrLinkExpired, http.StatusGone},
		{fmt.Errorf("%w: disk full", storage.ErrStorageWriteFailed), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, tt.err)
			assert.Equal(t, tt.expectedCode, rr.Code)
		})
	}
}

func TestFilesOnly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "gallery", "abc123"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "gallery", "abc123", "a.png"), []byte("png"), 0644))

	handler := http.FileServer(filesOnly{http.Dir(root)})

	tests := []struct {
		path         string
		expectedCode int
	}{
		{"/gallery/abc123/a.png", http.StatusOK},
		{"/gallery/", http.StatusNotFound},
		{"/gallery/abc123/", http.StatusNotFound},
		{"/", http.StatusNotFound},
		{"/gallery/missing.png", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req, err := http.NewRequest("GET", tt.path, nil)
			require.NoError(t, err)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedCode, rr.Code)
		})
	}
}
