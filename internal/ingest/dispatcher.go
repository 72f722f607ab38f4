package ingest

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
)

var errNoNotifier = errors.New("no notifier configured")

// dispatcher delivers the notifications of one cycle from a single
// goroutine, in the order records were enqueued.
type dispatcher struct {
	queue chan *domain.Record
	done  chan struct{}

	notified int
	failed   int
}

func newDispatcher(ctx context.Context, n Notifier, src Source, capacity int, log logger.Logger) *dispatcher {
	d := &dispatcher{
		queue: make(chan *domain.Record, max(capacity, 1)),
		done:  make(chan struct{}),
	}

	go d.run(ctx, n, src, log)

	return d
}

func (d *dispatcher) run(ctx context.Context, n Notifier, src Source, log logger.Logger) {
	defer close(d.done)

	for rec := range d.queue {
		if d.deliver(ctx, n, src, rec, log) {
			d.notified++
			continue
		}
		d.failed++
	}
}

// deliver formats and sends one record. A panic in the formatter or the
// notifier counts as a failed delivery and the queue keeps draining.
func (d *dispatcher) deliver(
	ctx context.Context,
	n Notifier,
	src Source,
	rec *domain.Record,
	log logger.Logger,
) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic in notification",
				logger.Int64("record_id", rec.ID),
				logger.Any("panic", r),
			)
			delivered = false
		}
	}()

	if n == nil {
		log.Warn("Notification skipped", logger.Int64("record_id", rec.ID), logger.Error(errNoNotifier))
		return false
	}

	message := src.Formatter.Format(rec)
	if n.Deliver(ctx, src.Destination, message) {
		return true
	}

	log.Warn("Notification not delivered",
		logger.Int64("record_id", rec.ID),
		logger.String("url", rec.SourceURL),
	)
	return false
}

// enqueue never blocks: the queue holds one slot per fetched candidate.
func (d *dispatcher) enqueue(rec *domain.Record) {
	d.queue <- rec
}

// wait closes the queue and blocks until every notification finished.
func (d *dispatcher) wait() (notified, failed int) {
	close(d.queue)
	<-d.done
	return d.notified, d.failed
}
