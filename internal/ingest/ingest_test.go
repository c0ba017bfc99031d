package ingest

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/media-library/internal/media"
)

type recorder struct {
	calls []string
}

type fakeRepo struct {
	rec    *recorder
	nextID int64
	err    error
}

func (f *fakeRepo) Create(ctx context.Context, m *media.Media) error {
	f.rec.calls = append(f.rec.calls, "create")
	if f.err != nil {
		return f.err
	}
	f.nextID++
	m.ID = f.nextID
	return nil
}

func (f *fakeRepo) Update(ctx context.Context, m *media.Media) error {
	f.rec.calls = append(f.rec.calls, "update")
	return f.err
}

type fakeStorage struct {
	rec      *recorder
	err      error
	contents []string
	names    []string
}

func (f *fakeStorage) Add(ctx context.Context, subject media.Subject, sourcePath string, m *media.Media, destFileName string) error {
	f.rec.calls = append(f.rec.calls, "store")
	if f.err != nil {
		return f.err
	}
	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}
	f.contents = append(f.contents, string(content))
	f.names = append(f.names, destFileName)
	return nil
}

type fakeDeriver struct {
	rec *recorder
}

func (f *fakeDeriver) CreateDerivedFiles(ctx context.Context, m *media.Media, subject media.Subject) error {
	f.rec.calls = append(f.rec.calls, "derive")
	return nil
}

type fixedProber string

func (p fixedProber) DetectMime(path string) (string, error) {
	return string(p), nil
}

type fixture struct {
	rec      *recorder
	repo     *fakeRepo
	storage  *fakeStorage
	ingestor *Ingestor
}

func newFixture(maxSize int64) *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:     rec,
		repo:    &fakeRepo{rec: rec},
		storage: &fakeStorage{rec: rec},
	}
	f.ingestor = New(f.repo, f.storage, &fakeDeriver{rec: rec}, fixedProber("image/png"), Config{
		MaxFileSize: maxSize,
		DefaultDisk: "local",
		Disks:       []string{"local", "s3"},
	}, nil)
	return f
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

var persisted = media.SubjectRef{Type: "users", ID: 7}

func TestAdd(t *testing.T) {
	f := newFixture(1024)
	source := writeSource(t, "holiday#1.png", "pixels")

	m, err := f.ingestor.Add(context.Background(), persisted, File{Path: source}, "", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"create", "store", "derive"}, f.rec.calls)
	assert.Equal(t, int64(1), m.ID)
	assert.NotEmpty(t, m.UUID)
	assert.Equal(t, "holiday-1.png", m.FileName)
	assert.Equal(t, "holiday-1", m.Name)
	assert.Equal(t, media.DefaultCollection, m.CollectionName)
	assert.Equal(t, "local", m.Disk)
	assert.Equal(t, "image/png", m.MimeType)
	assert.Equal(t, int64(6), m.Size)
	assert.Equal(t, "users", m.SubjectType)
	assert.Equal(t, int64(7), m.SubjectID)
	assert.Empty(t, m.Manipulations)
	assert.Equal(t, []string{"pixels"}, f.storage.contents)
	assert.NoFileExists(t, source)
}

func TestAddPreservesOriginal(t *testing.T) {
	f := newFixture(0)
	source := writeSource(t, "a.png", "x")

	m, err := f.ingestor.Add(context.Background(), persisted, File{
		Path:             source,
		Name:             "Avatar",
		FileName:         "me.png",
		PreserveOriginal: true,
	}, "avatars", "s3")
	require.NoError(t, err)

	assert.Equal(t, "Avatar", m.Name)
	assert.Equal(t, "me.png", m.FileName)
	assert.Equal(t, "avatars", m.CollectionName)
	assert.Equal(t, "s3", m.Disk)
	assert.FileExists(t, source)
}

func TestAddValidation(t *testing.T) {
	tests := []struct {
		name    string
		subject media.Subject
		content string
		missing bool
		err     error
	}{
		{
			name:    "subject not persisted wins over missing file",
			subject: media.SubjectRef{Type: "users"},
			missing: true,
			err:     ErrSubjectNotPersisted,
		},
		{
			name:    "subject not persisted wins over size",
			subject: media.SubjectRef{Type: "users"},
			content: "way too large",
			err:     ErrSubjectNotPersisted,
		},
		{
			name:    "missing file",
			subject: persisted,
			missing: true,
			err:     ErrSourceFileMissing,
		},
		{
			name:    "too large",
			subject: persisted,
			content: "way too large",
			err:     ErrFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(4)
			path := filepath.Join(t.TempDir(), "missing.png")
			if !tt.missing {
				path = writeSource(t, "a.png", tt.content)
			}

			_, err := f.ingestor.Add(context.Background(), tt.subject, File{Path: path}, "", "")
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, f.rec.calls)
		})
	}
}

func TestAddRejectsUnknownDisk(t *testing.T) {
	f := newFixture(0)
	source := writeSource(t, "a.png", "x")

	_, err := f.ingestor.Add(context.Background(), persisted, File{Path: source}, "", "nope")
	assert.ErrorIs(t, err, ErrUnknownDisk)
	assert.Empty(t, f.rec.calls)
	assert.FileExists(t, source)
}

func TestAddStorageFailureKeepsRecord(t *testing.T) {
	f := newFixture(0)
	f.storage.err = errors.New("disk full")
	source := writeSource(t, "a.png", "x")

	m, err := f.ingestor.Add(context.Background(), persisted, File{Path: source}, "", "")
	require.Error(t, err)

	assert.Equal(t, []string{"create", "store"}, f.rec.calls)
	require.NotNil(t, m)
	assert.Equal(t, int64(1), m.ID)
	assert.FileExists(t, source)
}

func TestUpdate(t *testing.T) {
	f := newFixture(0)
	existing := &media.Media{
		ID:            3,
		FileName:      "original.png",
		MimeType:      "image/gif",
		Size:          1,
		Manipulations: media.Manipulations{"thumb": {media.NewMap().Set("w", media.Int(10))}},
	}
	source := writeSource(t, "replacement.bin", "new bytes")

	m, err := f.ingestor.Update(context.Background(), persisted, existing, File{Path: source})
	require.NoError(t, err)

	assert.Equal(t, []string{"update", "store", "derive"}, f.rec.calls)
	assert.Equal(t, int64(9), m.Size)
	assert.Equal(t, "image/png", m.MimeType)
	assert.Empty(t, m.Manipulations)
	assert.Equal(t, []string{"original.png"}, f.storage.names)
	assert.Equal(t, []string{"new bytes"}, f.storage.contents)
	assert.NoFileExists(t, source)
}

func TestUpdateValidatesSubject(t *testing.T) {
	f := newFixture(0)

	_, err := f.ingestor.Update(context.Background(), media.SubjectRef{}, &media.Media{}, File{Path: writeSource(t, "a", "x")})
	assert.ErrorIs(t, err, ErrSubjectNotPersisted)
}

func newUploadRequest(t *testing.T, field, fileName, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("collection", "avatars"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestFromRequest(t *testing.T) {
	req := newUploadRequest(t, "file", "cat.png", "meow")

	f, err := FromRequest(req, "file")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Path) })

	assert.Equal(t, "cat.png", f.FileName)
	content, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(content))
}

func TestFromRequestMissingFile(t *testing.T) {
	req := newUploadRequest(t, "", "", "")

	_, err := FromRequest(req, "file")
	assert.ErrorIs(t, err, ErrRequestFileMissing)
}
