// Package storage writes media files to the backend of their disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pavel-fokin/media-library/internal/media"
	"github.com/pavel-fokin/media-library/internal/pathgen"
)

var (
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrUnknownDisk        = errors.New("unknown disk")
)

// Provider abstracts a storage backend addressed by slash-separated keys.
type Provider interface {
	// Put writes data under key, replacing existing content
	Put(ctx context.Context, key string, r io.Reader) error

	// Open returns a reader for key
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Exists checks if key exists
	Exists(ctx context.Context, key string) (bool, error)
}

// Filesystem stores media files on the provider of their disk, at the
// locations given by a path generator.
type Filesystem struct {
	disks  map[string]Provider
	paths  pathgen.Generator
	logger *slog.Logger
}

func NewFilesystem(paths pathgen.Generator, disks map[string]Provider, logger *slog.Logger) *Filesystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filesystem{
		disks:  disks,
		paths:  paths,
		logger: logger.With("component", "filesystem"),
	}
}

func (f *Filesystem) disk(name string) (Provider, error) {
	p, ok := f.disks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDisk, name)
	}
	return p, nil
}

// Add copies the local file at sourcePath to the media's disk as destFileName.
func (f *Filesystem) Add(ctx context.Context, subject media.Subject, sourcePath string, m *media.Media, destFileName string) error {
	key := f.paths.Path(m) + destFileName
	if err := f.put(ctx, m.Disk, key, sourcePath); err != nil {
		return err
	}

	f.logger.Info("Stored media file",
		"media_id", m.ID,
		"subject_type", subject.SubjectType(),
		"subject_id", subject.SubjectID(),
		"disk", m.Disk,
		"key", key,
	)
	return nil
}

// AddConversion copies a generated file to the media's conversions directory.
func (f *Filesystem) AddConversion(ctx context.Context, m *media.Media, localPath, fileName string) error {
	return f.put(ctx, m.Disk, f.paths.ConversionsPath(m)+fileName, localPath)
}

func (f *Filesystem) put(ctx context.Context, disk, key, localPath string) error {
	p, err := f.disk(disk)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWriteFailed, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open source: %w", ErrStorageWriteFailed, err)
	}
	defer src.Close()

	if err := p.Put(ctx, key, src); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWriteFailed, err)
	}
	return nil
}

// CopyFromMediaLibrary downloads the media's original file to targetPath.
func (f *Filesystem) CopyFromMediaLibrary(ctx context.Context, m *media.Media, targetPath string) error {
	p, err := f.disk(m.Disk)
	if err != nil {
		return err
	}

	r, err := p.Open(ctx, f.paths.Path(m)+m.FileName)
	if err != nil {
		return fmt.Errorf("failed to open media file: %w", err)
	}
	defer r.Close()

	dst, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("failed to copy media file: %w", err)
	}
	return dst.Close()
}

// Open returns a reader for the media's original file or, with a non-empty
// conversionFile, for that file in the conversions directory.
func (f *Filesystem) Open(ctx context.Context, m *media.Media, conversionFile string) (io.ReadCloser, error) {
	p, err := f.disk(m.Disk)
	if err != nil {
		return nil, err
	}

	key := f.paths.Path(m) + m.FileName
	if conversionFile != "" {
		key = f.paths.ConversionsPath(m) + conversionFile
	}
	return p.Open(ctx, key)
}

// Exists checks if the media's original file is present on its disk.
func (f *Filesystem) Exists(ctx context.Context, m *media.Media) (bool, error) {
	p, err := f.disk(m.Disk)
	if err != nil {
		return false, err
	}
	return p.Exists(ctx, f.paths.Path(m)+m.FileName)
}

// Delete removes the original file and the given conversion files.
// Every file is attempted; the errors are joined.
func (f *Filesystem) Delete(ctx context.Context, m *media.Media, conversionFiles []string) error {
	p, err := f.disk(m.Disk)
	if err != nil {
		return err
	}

	keys := []string{f.paths.Path(m) + m.FileName}
	for _, name := range conversionFiles {
		keys = append(keys, f.paths.ConversionsPath(m)+name)
	}

	var errs []error
	for _, key := range keys {
		if err := p.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
