package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pavel-fokin/media-library/internal/manipulator"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler performs one job.
type Handler func(ctx context.Context, job manipulator.Job) error

type Consumer struct {
	reader   messageReader
	logger   *slog.Logger
	backoff  time.Duration
	attempts int
}

func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, logger)
}

func newConsumer(r messageReader, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:   r,
		logger:   logger.With("component", "kafka-consumer"),
		backoff:  time.Second,
		attempts: 3,
	}
}

// Run reads jobs and passes them to handle until ctx is done. A message is
// committed once its job succeeds or has failed on every attempt, so a job
// interrupted by a crash is delivered again.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to read message", "error", err)
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		var job manipulator.Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.logger.Error("Failed to decode job", "error", err, "key", string(msg.Key))
		} else if !c.process(ctx, handle, job) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to commit message", "error", err, "offset", msg.Offset)
		}
	}
}

// process runs job until it succeeds or runs out of attempts. It reports
// false when ctx ends first.
func (c *Consumer) process(ctx context.Context, handle Handler, job manipulator.Job) bool {
	for attempt := 1; ; attempt++ {
		err := handle(ctx, job)
		if err == nil {
			c.logger.Info("Job done", "media_id", job.MediaID, "conversions", job.Conversions)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		c.logger.Error("Job failed", "error", err, "media_id", job.MediaID, "conversions", job.Conversions, "attempt", attempt)
		if attempt >= c.attempts {
			c.logger.Warn("Dropping job", "media_id", job.MediaID, "attempts", attempt)
			return true
		}
		if !c.wait(ctx) {
			return false
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}

func (c *Consumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
