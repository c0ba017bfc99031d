// Package library wires the media library together and exposes the
// operations on media items that need more than one collaborator.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/pavel-fokin/media-library/internal/conversion"
	"github.com/pavel-fokin/media-library/internal/fs"
	"github.com/pavel-fokin/media-library/internal/ingest"
	"github.com/pavel-fokin/media-library/internal/kafka"
	"github.com/pavel-fokin/media-library/internal/manipulator"
	"github.com/pavel-fokin/media-library/internal/media"
	"github.com/pavel-fokin/media-library/internal/pathgen"
	"github.com/pavel-fokin/media-library/internal/s3"
	"github.com/pavel-fokin/media-library/internal/sqlite"
	"github.com/pavel-fokin/media-library/internal/storage"
	"github.com/pavel-fokin/media-library/internal/urlgen"
)

type Library struct {
	repo        *sqlite.Repository
	files       *storage.Filesystem
	urls        *urlgen.Factory
	classifier  *media.Classifier
	catalog     *conversion.Catalog
	manipulator *manipulator.Manipulator
	ingestor    *ingest.Ingestor
	closers     []io.Closer
	logger      *slog.Logger
}

// New builds the library from configuration.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var ids pathgen.Obfuscator
	if cfg.PathGenerator == pathgen.KindCustom {
		sqids, err := pathgen.NewSqids(cfg.IDAlphabet, cfg.IDMinLength)
		if err != nil {
			return nil, err
		}
		ids = sqids
	}
	paths, err := pathgen.New(cfg.PathGenerator, ids)
	if err != nil {
		return nil, err
	}

	catalog, err := conversion.LoadCatalog(cfg.ConversionsFile)
	if err != nil {
		return nil, err
	}

	disks, err := newDisks(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	l := &Library{
		repo:       repo,
		files:      storage.NewFilesystem(paths, disks, logger),
		urls:       urlgen.NewFactory(cfg.urls(), paths),
		classifier: media.NewClassifier(media.MimetypeProber{}),
		catalog:    catalog,
		closers:    []io.Closer{repo},
		logger:     logger.With("component", "library"),
	}

	var queue manipulator.Queue
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		l.closers = append(l.closers, producer)
		queue = producer
	}

	l.manipulator = manipulator.New(l.files, l.classifier, queue, logger, manipulator.ImageGenerator{MaxDimension: cfg.MaxDimension})
	l.ingestor = ingest.New(repo, l.files, l.manipulator, media.MimetypeProber{}, ingest.Config{
		MaxFileSize: cfg.MaxFileSize,
		DefaultDisk: cfg.DefaultDisk,
		Disks:       slices.Collect(maps.Keys(cfg.Disks)),
	}, logger)

	return l, nil
}

func newDisks(ctx context.Context, cfg Config) (map[string]storage.Provider, error) {
	disks := make(map[string]storage.Provider, len(cfg.Disks))
	for disk, driver := range cfg.Disks {
		switch driver {
		case urlgen.DriverLocal:
			disks[disk] = fs.NewStorage(cfg.LocalRoot)
		case urlgen.DriverS3:
			p, err := s3.NewStorage(ctx, cfg.S3.storage(cfg.S3.Bucket))
			if err != nil {
				return nil, fmt.Errorf("disk %q: %w", disk, err)
			}
			disks[disk] = p
		case urlgen.DriverMinio:
			bucket := cfg.Minio.Bucket
			if cfg.MinioMultipleDisk {
				bucket = disk
			}
			p, err := s3.NewStorage(ctx, cfg.Minio.storage(bucket))
			if err != nil {
				return nil, fmt.Errorf("disk %q: %w", disk, err)
			}
			disks[disk] = p
		}
	}
	return disks, nil
}

func (l *Library) Close() error {
	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Subject returns a reference to a subject, carrying the conversions
// declared for its type.
func (l *Library) Subject(subjectType string, id int64) media.Subject {
	return l.catalog.Subject(subjectType, id)
}

func (l *Library) subjectOf(m *media.Media) media.Subject {
	return l.Subject(m.SubjectType, m.SubjectID)
}

func (l *Library) Find(ctx context.Context, id int64) (*media.Media, error) {
	return l.repo.FindByID(ctx, id)
}

func (l *Library) List(ctx context.Context, subject media.Subject, collection string) ([]*media.Media, error) {
	return l.repo.ListForSubject(ctx, subject, collection)
}

func (l *Library) Add(ctx context.Context, subject media.Subject, f ingest.File, collection, disk string) (*media.Media, error) {
	return l.ingestor.Add(ctx, subject, f, collection, disk)
}

func (l *Library) Update(ctx context.Context, subject media.Subject, m *media.Media, f ingest.File) (*media.Media, error) {
	return l.ingestor.Update(ctx, subject, m, f)
}

// Conversions resolves the conversions of m.
func (l *Library) Conversions(m *media.Media) *conversion.Registry {
	return conversion.Build(m, l.subjectOf(m))
}

// ConversionNames lists every conversion registered for m.
func (l *Library) ConversionNames(m *media.Media) []string {
	return l.Conversions(m).Names()
}

// locate returns a url generator for the original file of m or, with a
// non-empty conversionName, for that conversion.
func (l *Library) locate(m *media.Media, conversionName string) (urlgen.Generator, error) {
	gen, err := l.urls.ForMedia(m)
	if err != nil {
		return nil, err
	}
	if conversionName == "" {
		return gen, nil
	}

	c, err := l.Conversions(m).ByName(conversionName)
	if err != nil {
		return nil, err
	}
	gen.SetConversion(c)
	return gen, nil
}

func (l *Library) URL(m *media.Media, conversionName string) (string, error) {
	gen, err := l.locate(m, conversionName)
	if err != nil {
		return "", err
	}
	return gen.URL(), nil
}

func (l *Library) Path(m *media.Media, conversionName string) (string, error) {
	gen, err := l.locate(m, conversionName)
	if err != nil {
		return "", err
	}
	return gen.Path(), nil
}

// Open returns the content of the original file of m or of one of its
// conversions, together with the file name it is stored under.
func (l *Library) Open(ctx context.Context, m *media.Media, conversionName string) (io.ReadCloser, string, error) {
	if conversionName == "" {
		r, err := l.files.Open(ctx, m, "")
		return r, m.FileName, err
	}

	c, err := l.Conversions(m).ByName(conversionName)
	if err != nil {
		return nil, "", err
	}
	fileName := c.FileName(m.Extension())
	r, err := l.files.Open(ctx, m, fileName)
	return r, fileName, err
}

// Type classifies m, probing the stored file when it lives on a local disk.
func (l *Library) Type(m *media.Media) media.Type {
	local := l.urls.IsLocal(m.Disk)
	var path string
	if local {
		path, _ = l.Path(m, "")
	}
	return l.classifier.Classify(m.FileName, m.MimeType, local, path)
}

// SetManipulations stores per-media overrides and regenerates the
// conversions they apply to.
func (l *Library) SetManipulations(ctx context.Context, m *media.Media, manipulations media.Manipulations) error {
	m.Manipulations = manipulations.Clone()
	if err := l.repo.Update(ctx, m); err != nil {
		return err
	}
	return l.manipulator.CreateDerivedFiles(ctx, m, l.subjectOf(m))
}

// Delete removes the files of m and then its record. A record whose disk
// is no longer configured is removed without touching any files.
func (l *Library) Delete(ctx context.Context, m *media.Media) error {
	err := l.files.Delete(ctx, m, l.Conversions(m).FileNames(""))
	switch {
	case errors.Is(err, storage.ErrUnknownDisk):
		l.logger.Warn("Deleting media on unknown disk", "media_id", m.ID, "disk", m.Disk)
	case err != nil:
		return fmt.Errorf("failed to delete media files: %w", err)
	}
	if err := l.repo.Delete(ctx, m.ID); err != nil {
		return err
	}

	l.logger.Info("Deleted media", "media_id", m.ID)
	return nil
}

// PerformQueued runs a job produced by the conversion queue. Conversions
// that are no longer registered are skipped.
func (l *Library) PerformQueued(ctx context.Context, job manipulator.Job) error {
	m, err := l.Find(ctx, job.MediaID)
	if err != nil {
		return err
	}

	registry := conversion.Build(m, l.Subject(job.SubjectType, job.SubjectID))
	var conversions []*conversion.Conversion
	for _, name := range job.Conversions {
		c, err := registry.ByName(name)
		if err != nil {
			l.logger.Warn("Skipping conversion", "media_id", m.ID, "error", err)
			continue
		}
		conversions = append(conversions, c)
	}

	return l.manipulator.PerformConversions(ctx, m, conversions)
}
