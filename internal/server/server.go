package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pavel-fokin/media-library/internal/conversion"
	"github.com/pavel-fokin/media-library/internal/ingest"
	"github.com/pavel-fokin/media-library/internal/library"
	"github.com/pavel-fokin/media-library/internal/media"
	"github.com/pavel-fokin/media-library/internal/signing"
	"github.com/pavel-fokin/media-library/internal/sqlite"
	"github.com/pavel-fokin/media-library/internal/storage"
)

const (
	// multipartOverhead is allowed on top of the maximum file size for form
	// fields and part headers.
	multipartOverhead = 1 << 20
	maxRequestBody    = 1 << 20
)

type Config struct {
	library.Config
	AdminToken string        `env:"MEDIA_LIBRARY_ADMIN_TOKEN,required"`
	HmacKey    string        `env:"MEDIA_LIBRARY_HMAC_KEY,required"`
	LinkTTL    time.Duration `env:"MEDIA_LIBRARY_LINK_TTL" envDefault:"15m"`
	Addr       string        `env:"MEDIA_LIBRARY_ADDR" envDefault:":8080"`
}

// New creates the HTTP server and the library behind it. The library must
// be closed after the server stops.
func New(ctx context.Context, cfg *Config) (*http.Server, *library.Library, error) {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	lib, err := library.New(ctx, cfg.Config, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize media library: %w", err)
	}

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewHandler(cfg, lib),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}, lib, nil
}

func NewHandler(cfg *Config, lib *library.Library) http.Handler {
	signer := signing.NewSigner(cfg.HmacKey, cfg.LinkTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	mux.HandleFunc("POST /v1/subjects/{type}/{id}/media", auth(cfg.AdminToken, uploadMedia(lib)))
	mux.HandleFunc("GET /v1/subjects/{type}/{id}/media", auth(cfg.AdminToken, listMedia(lib)))
	mux.HandleFunc("GET /v1/media/{id}", getMedia(lib))
	mux.HandleFunc("GET /v1/media/{id}/url", redirectToURL(lib))
	mux.HandleFunc("PUT /v1/media/{id}/file", auth(cfg.AdminToken, replaceFile(lib)))
	mux.HandleFunc("PUT /v1/media/{id}/manipulations", auth(cfg.AdminToken, setManipulations(lib)))
	mux.HandleFunc("DELETE /v1/media/{id}", auth(cfg.AdminToken, deleteMedia(lib)))
	mux.HandleFunc("POST /v1/media/{id}/links", auth(cfg.AdminToken, createLink(lib, signer)))
	mux.HandleFunc("GET /v1/media/{id}/download", signedDownload(lib, signer))

	// Local disks are served from their public prefix when it is a path.
	if prefix := strings.TrimRight(cfg.LocalURL, "/"); strings.HasPrefix(prefix, "/") {
		mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix, http.FileServer(filesOnly{http.Dir(cfg.LocalRoot)})))
	}

	var maxUpload int64
	if cfg.MaxFileSize > 0 {
		maxUpload = cfg.MaxFileSize + multipartOverhead
	}

	// Wrap the handler with logging middleware
	return loggingMiddleware(limitBody(mux, maxRequestBody, maxUpload))
}

// filesOnly serves regular files and reports directories as missing, so
// stored media cannot be listed.
type filesOnly struct {
	http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type mediaResource struct {
	*media.Media
	Type              media.Type        `json:"type"`
	Icon              string            `json:"icon"`
	HumanReadableSize string            `json:"human_readable_size"`
	URL               string            `json:"url"`
	Conversions       map[string]string `json:"conversions"`
}

func newMediaResource(lib *library.Library, m *media.Media) (*mediaResource, error) {
	url, err := lib.URL(m, "")
	if err != nil {
		return nil, err
	}

	t := lib.Type(m)
	res := &mediaResource{
		Media:             m,
		Type:              t,
		Icon:              media.TypeIcon(t),
		HumanReadableSize: m.HumanReadableSize(),
		URL:               url,
		Conversions:       map[string]string{},
	}

	for _, c := range lib.Conversions(m).ForCollection(m.CollectionName) {
		if _, ok := res.Conversions[c.Name()]; ok {
			continue
		}
		url, err := lib.URL(m, c.Name())
		if err != nil {
			return nil, err
		}
		res.Conversions[c.Name()] = url
	}

	return res, nil
}

func uploadMedia(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid subject id", http.StatusBadRequest)
			return
		}
		subject := lib.Subject(r.PathValue("type"), subjectID)

		file, ok := spoolUpload(w, r)
		if !ok {
			return
		}
		defer os.Remove(file.Path)

		file.Name = r.FormValue("name")
		if raw := r.FormValue("custom_properties"); raw != "" {
			file.CustomProperties = media.NewMap()
			if err := json.Unmarshal([]byte(raw), file.CustomProperties); err != nil {
				http.Error(w, "Invalid custom properties", http.StatusBadRequest)
				return
			}
		}

		m, err := lib.Add(r.Context(), subject, file, r.FormValue("collection"), r.FormValue("disk"))
		if err != nil {
			slog.Error("Upload failed", "error", err, "subject_type", subject.SubjectType(), "subject_id", subjectID)
			writeError(w, err)
			return
		}

		writeMedia(w, lib, m, http.StatusCreated)
	}
}

func listMedia(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid subject id", http.StatusBadRequest)
			return
		}
		subject := lib.Subject(r.PathValue("type"), subjectID)

		list, err := lib.List(r.Context(), subject, r.URL.Query().Get("collection"))
		if err != nil {
			slog.Error("List media failed", "error", err)
			writeError(w, err)
			return
		}

		resources := make([]*mediaResource, 0, len(list))
		for _, m := range list {
			res, err := newMediaResource(lib, m)
			if err != nil {
				slog.Error("Failed to describe media", "error", err, "media_id", m.ID)
				writeError(w, err)
				return
			}
			resources = append(resources, res)
		}

		writeJSON(w, http.StatusOK, resources)
	}
}

func getMedia(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := findMedia(w, r, lib)
		if !ok {
			return
		}
		writeMedia(w, lib, m, http.StatusOK)
	}
}

func redirectToURL(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := findMedia(w, r, lib)
		if !ok {
			return
		}

		url, err := lib.URL(m, r.URL.Query().Get("conversion"))
		if err != nil {
			writeError(w, err)
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}

func replaceFile(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := findMedia(w, r, lib)
		if !ok {
			return
		}

		file, ok := spoolUpload(w, r)
		if !ok {
			return
		}
		defer os.Remove(file.Path)

		m, err := lib.Update(r.Context(), lib.Subject(m.SubjectType, m.SubjectID), m, file)
		if err != nil {
			slog.Error("Replace file failed", "error", err, "media_id", r.PathValue("id"))
			writeError(w, err)
			return
		}

		writeMedia(w, lib, m, http.StatusOK)
	}
}

func setManipulations(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := findMedia(w, r, lib)
		if !ok {
			return
		}

		var manipulations media.Manipulations
		if err := json.NewDecoder(r.Body).Decode(&manipulations); err != nil {
			http.Error(w, "Invalid manipulations", http.StatusBadRequest)
			return
		}

		if err := lib.SetManipulations(r.Context(), m, manipulations); err != nil {
			slog.Error("Set manipulations failed", "error", err, "media_id", m.ID)
			writeError(w, err)
			return
		}

		writeMedia(w, lib, m, http.StatusOK)
	}
}

func deleteMedia(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := findMedia(w, r, lib)
		if !ok {
			return
		}
		slog.Info("Deleting media", "media_id", m.ID)

		if err := lib.Delete(r.Context(), m); err != nil {
			slog.Error("Delete failed", "error", err, "media_id", m.ID)
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func createLink(lib *library.Library, signer *signing.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := findMedia(w, r, lib)
		if !ok {
			return
		}

		conversionName := r.URL.Query().Get("conversion")
		if conversionName != "" {
			if _, err := lib.Conversions(m).ByName(conversionName); err != nil {
				writeError(w, err)
				return
			}
		}

		writeJSON(w, http.StatusCreated, signer.Link(m.ID, conversionName))
	}
}

func signedDownload(lib *library.Library, signer *signing.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid media id", http.StatusBadRequest)
			return
		}
		q := r.URL.Query()
		conversionName := q.Get("conversion")
		expires, _ := strconv.ParseInt(q.Get("expires"), 10, 64)

		if err := signer.Verify(id, conversionName, expires, q.Get("signature")); err != nil {
			slog.Info("Rejected download link", "media_id", id, "error", err)
			writeError(w, err)
			return
		}

		m, ok := findMedia(w, r, lib)
		if !ok {
			return
		}

		content, fileName, err := lib.Open(r.Context(), m, conversionName)
		if err != nil {
			slog.Error("Download failed", "error", err, "media_id", id)
			writeError(w, err)
			return
		}
		defer content.Close()

		contentType := m.MimeType
		if conversionName != "" || contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(fileName))
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, content)
	}
}

func findMedia(w http.ResponseWriter, r *http.Request, lib *library.Library) (*media.Media, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid media id", http.StatusBadRequest)
		return nil, false
	}

	m, err := lib.Find(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return m, true
}

// spoolUpload copies the "file" part of a multipart request to a temporary file.
func spoolUpload(w http.ResponseWriter, r *http.Request) (ingest.File, bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
			return ingest.File{}, false
		}
		http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
		return ingest.File{}, false
	}

	file, err := ingest.FromRequest(r, "file")
	if err != nil {
		writeError(w, err)
		return ingest.File{}, false
	}
	return file, true
}

func writeMedia(w http.ResponseWriter, lib *library.Library, m *media.Media, status int) {
	res, err := newMediaResource(lib, m)
	if err != nil {
		slog.Error("Failed to describe media", "error", err, "media_id", m.ID)
		writeError(w, err)
		return
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrSubjectNotPersisted):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ingest.ErrSourceFileMissing), errors.Is(err, ingest.ErrRequestFileMissing),
		errors.Is(err, ingest.ErrUnknownDisk):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ingest.ErrFileTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, conversion.ErrUnknownConversion), errors.Is(err, sqlite.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, signing.ErrInvalidSignature):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, signing.ErrLinkExpired):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, storage.ErrStorageWriteFailed):
		http.Error(w, "Storage write failed", http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func auth(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// limitBody caps request bodies at maxBody. Multipart bodies are streamed
// to the handler and capped at maxUpload, zero leaves them uncapped. Other
// bodies are read up front so oversized requests are rejected before any
// handler runs.
func limitBody(next http.Handler, maxBody, maxUpload int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			if maxUpload > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
			}
			next.ServeHTTP(w, r)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
