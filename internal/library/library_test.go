package library

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/media-library/internal/conversion"
	"github.com/pavel-fokin/media-library/internal/ingest"
	"github.com/pavel-fokin/media-library/internal/manipulator"
	"github.com/pavel-fokin/media-library/internal/media"
	"github.com/pavel-fokin/media-library/internal/sqlite"
)

const catalogYAML = `
subjects:
  users:
    conversions:
      - name: thumb
        queued: false
        collections: [avatars]
        manipulations:
          - {w: 20}
      - name: large
        manipulations:
          - {w: 40, fm: jpg}
`

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	catalog := filepath.Join(dir, "conversions.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(catalogYAML), 0644))

	return Config{
		DBPath:          filepath.Join(dir, "media.db"),
		MaxFileSize:     1 << 20,
		DefaultDisk:     "local",
		Disks:           map[string]string{"local": "local"},
		PathGenerator:   "default",
		LocalRoot:       filepath.Join(dir, "media"),
		LocalURL:        "/media",
		ConversionsFile: catalog,
	}
}

func setupLibrary(t *testing.T) (*Library, Config) {
	t.Helper()
	cfg := testConfig(t)
	l, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, cfg
}

func writePNG(t *testing.T, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, imaging.Save(imaging.New(width, height, color.NRGBA{G: 255, A: 255}), path))
	return path
}

func imageWidth(t *testing.T, path string) int {
	t.Helper()
	img, err := imaging.Open(path)
	require.NoError(t, err)
	return img.Bounds().Dx()
}

func TestLibraryLifecycle(t *testing.T) {
	ctx := context.Background()
	l, cfg := setupLibrary(t)
	dir := filepath.Join(cfg.LocalRoot, "000", "000", "001")

	source := writePNG(t, "photo.png", 80, 40)
	m, err := l.Add(ctx, l.Subject("users", 1), ingest.File{Path: source}, "avatars", "")
	require.NoError(t, err)
	require.Equal(t, int64(1), m.ID)

	assert.NoFileExists(t, source)
	assert.FileExists(t, filepath.Join(dir, "photo.png"))
	assert.Equal(t, 20, imageWidth(t, filepath.Join(dir, "conversions", "thumb.png")))
	assert.Equal(t, 40, imageWidth(t, filepath.Join(dir, "conversions", "large.jpg")))

	t.Run("locations", func(t *testing.T) {
		url, err := l.URL(m, "")
		require.NoError(t, err)
		assert.Equal(t, "/media/000/000/001/photo.png", url)

		url, err = l.URL(m, "large")
		require.NoError(t, err)
		assert.Equal(t, "/media/000/000/001/conversions/large.jpg", url)

		path, err := l.Path(m, "thumb")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "conversions", "thumb.png"), path)

		_, err = l.URL(m, "missing")
		assert.ErrorIs(t, err, conversion.ErrUnknownConversion)
	})

	t.Run("inspection", func(t *testing.T) {
		assert.Equal(t, media.TypeImage, l.Type(m))
		assert.Equal(t, []string{"thumb", "large"}, l.ConversionNames(m))

		list, err := l.List(ctx, l.Subject("users", 1), "avatars")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "image/png", list[0].MimeType)
	})

	t.Run("manipulations regenerate conversions", func(t *testing.T) {
		err := l.SetManipulations(ctx, m, media.Manipulations{
			"thumb": {media.NewMap().Set("w", media.Int(10))},
		})
		require.NoError(t, err)

		assert.Equal(t, 10, imageWidth(t, filepath.Join(dir, "conversions", "thumb.png")))

		found, err := l.Find(ctx, m.ID)
		require.NoError(t, err)
		assert.Contains(t, found.Manipulations, "thumb")
	})

	t.Run("queued job", func(t *testing.T) {
		large := filepath.Join(dir, "conversions", "large.jpg")
		require.NoError(t, os.Remove(large))

		err := l.PerformQueued(ctx, manipulator.Job{
			MediaID:     m.ID,
			SubjectType: "users",
			SubjectID:   1,
			Conversions: []string{"large", "removed-since"},
		})
		require.NoError(t, err)
		assert.FileExists(t, large)
	})

	t.Run("update replaces file in place", func(t *testing.T) {
		replacement := writePNG(t, "other-name.png", 60, 60)

		updated, err := l.Update(ctx, l.Subject("users", 1), m, ingest.File{Path: replacement})
		require.NoError(t, err)

		assert.Equal(t, "photo.png", updated.FileName)
		assert.Empty(t, updated.Manipulations)
		assert.Equal(t, 60, imageWidth(t, filepath.Join(dir, "photo.png")))
		assert.Equal(t, 20, imageWidth(t, filepath.Join(dir, "conversions", "thumb.png")))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, l.Delete(ctx, m))

		assert.NoFileExists(t, filepath.Join(dir, "photo.png"))
		assert.NoFileExists(t, filepath.Join(dir, "conversions", "thumb.png"))
		assert.NoFileExists(t, filepath.Join(dir, "conversions", "large.jpg"))

		_, err := l.Find(ctx, m.ID)
		assert.ErrorIs(t, err, sqlite.ErrNotFound)
	})
}

func TestLibraryRejectsUnpersistedSubject(t *testing.T) {
	l, _ := setupLibrary(t)

	_, err := l.Add(context.Background(), l.Subject("users", 0), ingest.File{Path: writePNG(t, "a.png", 1, 1)}, "", "")
	assert.ErrorIs(t, err, ingest.ErrSubjectNotPersisted)
}

func TestNewValidatesDisks(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{
			name:   "default disk not configured",
			modify: func(c *Config) { c.DefaultDisk = "media" },
		},
		{
			name:   "unsupported driver",
			modify: func(c *Config) { c.Disks["ftp"] = "ftp" },
		},
		{
			name:   "unknown path generator",
			modify: func(c *Config) { c.PathGenerator = "dated" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(&cfg)

			_, err := New(context.Background(), cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestCustomPathGenerator(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.PathGenerator = "custom"
	cfg.IDMinLength = 6
	l, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	m, err := l.Add(ctx, l.Subject("posts", 4), ingest.File{Path: writePNG(t, "a.png", 4, 4)}, "gallery", "")
	require.NoError(t, err)

	url, err := l.URL(m, "")
	require.NoError(t, err)
	assert.Regexp(t, `^/media/gallery/[0-9A-Za-z]{6,}/a\.png$`, url)
	assert.Empty(t, l.ConversionNames(m))
}

func TestAddRejectsUnknownDisk(t *testing.T) {
	ctx := context.Background()
	l, _ := setupLibrary(t)

	_, err := l.Add(ctx, l.Subject("users", 1), ingest.File{Path: writePNG(t, "a.png", 2, 2)}, "", "nope")
	assert.ErrorIs(t, err, ingest.ErrUnknownDisk)

	list, err := l.List(ctx, l.Subject("users", 1), "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteMediaOnRetiredDisk(t *testing.T) {
	ctx := context.Background()
	l, _ := setupLibrary(t)

	m := &media.Media{
		UUID:           "retired",
		SubjectType:    "users",
		SubjectID:      1,
		CollectionName: "default",
		FileName:       "a.png",
		Disk:           "retired",
	}
	require.NoError(t, l.repo.Create(ctx, m))

	require.NoError(t, l.Delete(ctx, m))

	_, err := l.Find(ctx, m.ID)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}
