// Package ingest adds uploaded files to the media library and replaces the
// file behind existing media.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/pavel-fokin/media-library/internal/media"
)

var (
	ErrSubjectNotPersisted = errors.New("subject is not persisted")
	ErrSourceFileMissing   = errors.New("source file does not exist")
	ErrFileTooLarge        = errors.New("file is too large")
	ErrRequestFileMissing  = errors.New("request does not contain file")
	ErrUnknownDisk         = errors.New("disk is not configured")
)

// Repository persists media records.
type Repository interface {
	Create(ctx context.Context, m *media.Media) error
	Update(ctx context.Context, m *media.Media) error
}

// Storage copies a local file onto the media's disk.
type Storage interface {
	Add(ctx context.Context, subject media.Subject, sourcePath string, m *media.Media, destFileName string) error
}

// Deriver creates the conversions of freshly stored media.
type Deriver interface {
	CreateDerivedFiles(ctx context.Context, m *media.Media, subject media.Subject) error
}

type Config struct {
	// MaxFileSize in bytes; zero disables the check.
	MaxFileSize       int64
	DefaultDisk       string
	DefaultCollection string
	// Disks lists the configured disks; empty accepts any disk.
	Disks []string
}

// File describes a local file to ingest.
type File struct {
	Path string
	// Name is the display name; defaults to the file name without extension.
	Name string
	// FileName is the stored name; defaults to the base name of Path.
	FileName         string
	MimeType         string
	CustomProperties *media.Map
	// PreserveOriginal keeps the file at Path after ingestion.
	PreserveOriginal bool
}

type Ingestor struct {
	repo    Repository
	storage Storage
	deriver Deriver
	prober  media.MimeProber
	cfg     Config
	logger  *slog.Logger
}

// New creates an ingestor. deriver may be nil when conversions are not generated.
func New(repo Repository, storage Storage, deriver Deriver, prober media.MimeProber, cfg Config, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = media.DefaultCollection
	}
	return &Ingestor{
		repo:    repo,
		storage: storage,
		deriver: deriver,
		prober:  prober,
		cfg:     cfg,
		logger:  logger.With("component", "ingest"),
	}
}

// validate checks, in order, that the subject is persisted, that the file
// exists and that it is not too large. It returns the file size.
func (i *Ingestor) validate(subject media.Subject, path string) (int64, error) {
	if subject == nil || !subject.Exists() {
		return 0, ErrSubjectNotPersisted
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", ErrSourceFileMissing, path)
	}

	if i.cfg.MaxFileSize > 0 && info.Size() > i.cfg.MaxFileSize {
		return 0, fmt.Errorf("%w: %s is %d bytes, maximum is %d", ErrFileTooLarge, path, info.Size(), i.cfg.MaxFileSize)
	}

	return info.Size(), nil
}

// Add validates f and stores it as new media of subject in collection on
// disk. Empty collection and disk fall back to the configured defaults.
func (i *Ingestor) Add(ctx context.Context, subject media.Subject, f File, collection, disk string) (*media.Media, error) {
	size, err := i.validate(subject, f.Path)
	if err != nil {
		return nil, err
	}

	fileName := f.FileName
	if fileName == "" {
		fileName = filepath.Base(f.Path)
	}
	fileName = sanitizeFileName(fileName)

	name := f.Name
	if name == "" {
		name = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	if collection == "" {
		collection = i.cfg.DefaultCollection
	}
	if disk == "" {
		disk = i.cfg.DefaultDisk
	}
	if len(i.cfg.Disks) > 0 && !slices.Contains(i.cfg.Disks, disk) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDisk, disk)
	}

	customProperties := f.CustomProperties
	if customProperties == nil {
		customProperties = media.NewMap()
	}

	m := &media.Media{
		UUID:             uuid.NewString(),
		SubjectType:      subject.SubjectType(),
		SubjectID:        subject.SubjectID(),
		CollectionName:   collection,
		Name:             name,
		FileName:         fileName,
		MimeType:         i.mimeType(f),
		Disk:             disk,
		Size:             size,
		Manipulations:    media.Manipulations{},
		CustomProperties: customProperties,
	}

	if err := i.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save media: %w", err)
	}

	if err := i.store(ctx, subject, f, m); err != nil {
		return m, err
	}

	i.logger.Info("Added media", "media_id", m.ID, "collection", m.CollectionName, "disk", m.Disk, "size", m.Size)
	return m, nil
}

// Update replaces the file of existing media in place. The stored
// manipulations are cleared because they were made for the previous file.
func (i *Ingestor) Update(ctx context.Context, subject media.Subject, m *media.Media, f File) (*media.Media, error) {
	size, err := i.validate(subject, f.Path)
	if err != nil {
		return nil, err
	}

	m.Size = size
	m.Manipulations = media.Manipulations{}
	if mime := i.mimeType(f); mime != "" {
		m.MimeType = mime
	}

	if err := i.repo.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save media: %w", err)
	}

	if err := i.store(ctx, subject, File{Path: f.Path, FileName: m.FileName, PreserveOriginal: f.PreserveOriginal}, m); err != nil {
		return m, err
	}

	i.logger.Info("Updated media", "media_id", m.ID, "size", m.Size)
	return m, nil
}

// store writes the file, creates derived files and removes the source.
// Nothing is rolled back when a later step fails.
func (i *Ingestor) store(ctx context.Context, subject media.Subject, f File, m *media.Media) error {
	if err := i.storage.Add(ctx, subject, f.Path, m, m.FileName); err != nil {
		return err
	}

	if i.deriver != nil {
		if err := i.deriver.CreateDerivedFiles(ctx, m, subject); err != nil {
			return fmt.Errorf("failed to create derived files: %w", err)
		}
	}

	if !f.PreserveOriginal {
		if err := os.Remove(f.Path); err != nil {
			return fmt.Errorf("failed to remove source file: %w", err)
		}
	}
	return nil
}

func (i *Ingestor) mimeType(f File) string {
	if i.prober != nil {
		if mime, err := i.prober.DetectMime(f.Path); err == nil {
			return mime
		}
	}
	return f.MimeType
}

func sanitizeFileName(name string) string {
	return strings.NewReplacer("#", "-", "/", "-", `\`, "-").Replace(name)
}
