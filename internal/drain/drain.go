// Package drain ships queued export records to their partners. It is a
// plain polling loop: the concurrency-sensitive parts of delivery
// (credential refresh, retry) live in the transport underneath the
// partner clients.
package drain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/partnerlink/internal/queue"
)

// Uploader stores one object with a partner. Satisfied by
// *partner.Client.
type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte) error
}

// Drainer moves records from the queue to partner object storage.
// Delivery is at-least-once: a record is acked only after its upload
// succeeded, and uploads are idempotent overwrites.
type Drainer struct {
	queue     *queue.Queue
	uploaders map[string]Uploader
	logger    *slog.Logger
	interval  time.Duration
	batch     int
}

// New creates a Drainer. uploaders maps partner names to their
// clients; records for unknown partners stay queued and are logged.
func New(q *queue.Queue, uploaders map[string]Uploader, logger *slog.Logger, interval time.Duration, batch int) *Drainer {
	return &Drainer{
		queue:     q,
		uploaders: uploaders,
		logger:    logger,
		interval:  interval,
		batch:     batch,
	}
}

// Run drains the queue on every tick until the context is cancelled.
func (d *Drainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			shipped, err := d.DrainOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				d.logger.Warn("drain pass failed", slog.String("error", err.Error()))

				continue
			}

			if shipped > 0 {
				d.logger.Info("drained records", slog.Int("count", shipped))
			}
		}
	}
}

// DrainOnce uploads one batch of pending records and acks the
// successes. Failed uploads stay queued for the next pass; the pass
// itself only errors when the queue is unreadable.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	pending, err := d.queue.Pending(d.batch)
	if err != nil {
		return 0, fmt.Errorf("listing pending records: %w", err)
	}

	var shipped int

	for _, rec := range pending {
		if ctx.Err() != nil {
			return shipped, ctx.Err()
		}

		uploader, ok := d.uploaders[rec.Partner]
		if !ok {
			d.logger.Warn("record targets unconfigured partner, leaving queued",
				slog.Uint64("seq", rec.Seq),
				slog.String("partner", rec.Partner),
			)

			continue
		}

		if err := uploader.PutObject(ctx, rec.Key, rec.Payload); err != nil {
			d.logger.Warn("upload failed, leaving record queued",
				slog.Uint64("seq", rec.Seq),
				slog.String("partner", rec.Partner),
				slog.String("key", rec.Key),
				slog.String("error", err.Error()),
			)

			continue
		}

		if err := d.queue.Ack(rec.Seq); err != nil {
			return shipped, fmt.Errorf("acking record %d: %w", rec.Seq, err)
		}

		shipped++
	}

	return shipped, nil
}
