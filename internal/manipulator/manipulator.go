// Package manipulator creates the derived files of media items.
package manipulator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pavel-fokin/media-library/internal/conversion"
	"github.com/pavel-fokin/media-library/internal/media"
)

// Job asks a worker to perform queued conversions of one media item.
type Job struct {
	MediaID     int64    `json:"media_id"`
	SubjectType string   `json:"subject_type"`
	SubjectID   int64    `json:"subject_id"`
	Conversions []string `json:"conversions"`
}

// Queue hands jobs to asynchronous workers.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Files moves originals out of and conversions into the media library.
type Files interface {
	CopyFromMediaLibrary(ctx context.Context, m *media.Media, targetPath string) error
	AddConversion(ctx context.Context, m *media.Media, localPath, fileName string) error
}

// Generator renders conversions for the media types it supports.
type Generator interface {
	CanConvert(t media.Type) bool
	// Convert writes the result of conv applied to sourcePath to targetPath.
	Convert(ctx context.Context, sourcePath string, conv *conversion.Conversion, targetPath string) error
}

type Manipulator struct {
	files      Files
	classifier *media.Classifier
	queue      Queue
	generators []Generator
	logger     *slog.Logger
}

// New creates a manipulator. With a nil queue, queued conversions are
// performed inline.
func New(files Files, classifier *media.Classifier, queue Queue, logger *slog.Logger, generators ...Generator) *Manipulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manipulator{
		files:      files,
		classifier: classifier,
		queue:      queue,
		generators: generators,
		logger:     logger.With("component", "manipulator"),
	}
}

// CreateDerivedFiles performs the non-queued conversions of m and queues the rest.
func (mp *Manipulator) CreateDerivedFiles(ctx context.Context, m *media.Media, subject media.Subject) error {
	registry := conversion.Build(m, subject)

	if err := mp.PerformConversions(ctx, m, registry.NonQueued(m.CollectionName)); err != nil {
		return err
	}

	queued := registry.Queued(m.CollectionName)
	if len(queued) == 0 {
		return nil
	}

	if mp.queue == nil {
		return mp.PerformConversions(ctx, m, queued)
	}

	job := Job{
		MediaID:     m.ID,
		SubjectType: subject.SubjectType(),
		SubjectID:   subject.SubjectID(),
	}
	for _, c := range queued {
		job.Conversions = append(job.Conversions, c.Name())
	}

	if err := mp.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to queue conversions: %w", err)
	}

	mp.logger.Info("Queued conversions", "media_id", m.ID, "conversions", job.Conversions)
	return nil
}

// PerformConversions renders conversions from a local copy of the original
// and stores each result in the media's conversions directory. Media that
// no generator supports is skipped.
func (mp *Manipulator) PerformConversions(ctx context.Context, m *media.Media, conversions []*conversion.Conversion) error {
	if len(conversions) == 0 {
		return nil
	}

	dir, err := os.MkdirTemp("", "media-conversions-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	original := filepath.Join(dir, "original"+filepath.Ext(m.FileName))
	if err := mp.files.CopyFromMediaLibrary(ctx, m, original); err != nil {
		return err
	}

	t := mp.classifier.Classify(m.FileName, m.MimeType, true, original)
	generator := mp.generatorFor(t)
	if generator == nil {
		mp.logger.Debug("No generator for media", "media_id", m.ID, "type", t)
		return nil
	}

	for _, c := range conversions {
		fileName := c.FileName(m.Extension())
		target := filepath.Join(dir, fileName)

		if err := generator.Convert(ctx, original, c, target); err != nil {
			return fmt.Errorf("failed to perform conversion %q: %w", c.Name(), err)
		}
		if err := mp.files.AddConversion(ctx, m, target, fileName); err != nil {
			return fmt.Errorf("failed to store conversion %q: %w", c.Name(), err)
		}

		mp.logger.Info("Performed conversion", "media_id", m.ID, "conversion", c.Name(), "file_name", fileName)
	}

	return nil
}

func (mp *Manipulator) generatorFor(t media.Type) Generator {
	for _, g := range mp.generators {
		if g.CanConvert(t) {
			return g
		}
	}
	return nil
}
