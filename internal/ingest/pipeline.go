// Package ingest runs ingestion cycles: fetch, fingerprint, deduplicate,
// persist and notify.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/fingerprint"
	"github.com/jonesrussell/north-cloud/harvester/internal/format"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/notifier"
	"github.com/jonesrussell/north-cloud/harvester/internal/source"
)

// Candidate outcomes reported to the Recorder.
const (
	OutcomeNew                  = "new"
	OutcomeDuplicateURL         = "duplicate_url"
	OutcomeDuplicateFingerprint = "duplicate_fingerprint"
	OutcomeAlreadyExists        = "already_exists"
	OutcomeSkipped              = "skipped"
)

// RecordStore is the per-source record persistence used by a cycle.
type RecordStore interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	Insert(ctx context.Context, rec *domain.Record) (domain.InsertResult, error)
}

// Notifier delivers notification messages.
type Notifier interface {
	Deliver(ctx context.Context, dest notifier.Destination, message string) bool
}

// Recorder receives cycle and candidate outcomes.
type Recorder interface {
	RecordCycle(source string, duration time.Duration, failed bool)
	RecordCandidate(source, outcome string)
}

// Source bundles everything one cycle needs for a single source.
type Source struct {
	Name          string
	Adapter       source.Adapter
	Fingerprinter fingerprint.Fingerprinter
	Formatter     format.Formatter
	Destination   notifier.Destination
	Store         RecordStore
}

// CycleStats summarizes one cycle.
type CycleStats struct {
	Found                int `json:"found"`
	New                  int `json:"new"`
	DuplicateURL         int `json:"duplicate_url"`
	DuplicateFingerprint int `json:"duplicate_fingerprint"`
	AlreadyExists        int `json:"already_exists"`
	Skipped              int `json:"skipped"`
	Notified             int `json:"notified"`
	NotifyFailed         int `json:"notify_failed"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// Pipeline runs ingestion cycles.
type Pipeline struct {
	notifier Notifier
	recorder Recorder
	log      logger.Logger
	tracer   trace.Tracer
}

// NewPipeline creates a Pipeline that announces new records through n.
func NewPipeline(n Notifier, log logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		notifier: n,
		log:      log,
		tracer:   otel.Tracer("harvester-ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunCycle runs one cycle for src and returns the number of inserted records.
func (p *Pipeline) RunCycle(ctx context.Context, src Source) (int, error) {
	stats, err := p.Run(ctx, src)
	return stats.New, err
}

// Run runs one cycle for src and returns its stats.
//
// A fetch failure or a failed duplicate check aborts the cycle. A candidate
// whose fingerprint or insert fails is skipped. Notifications are sent in
// insertion order and the cycle returns only after all of them finished.
func (p *Pipeline) Run(ctx context.Context, src Source) (CycleStats, error) {
	start := time.Now()
	log := p.log.With(logger.Source(src.Name))

	ctx, span := p.tracer.Start(ctx, "ingest.cycle",
		trace.WithAttributes(attribute.String("source", src.Name)))
	defer span.End()

	stats, err := p.run(ctx, src, log)

	span.SetAttributes(
		attribute.Int("found", stats.Found),
		attribute.Int("new", stats.New),
		attribute.Int("skipped", stats.Skipped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")
	}
	if p.recorder != nil {
		p.recorder.RecordCycle(src.Name, time.Since(start), err != nil)
	}

	fields := []logger.Field{
		logger.Int("found", stats.Found),
		logger.Int("new", stats.New),
		logger.Int("duplicate_url", stats.DuplicateURL),
		logger.Int("duplicate_fingerprint", stats.DuplicateFingerprint),
		logger.Int("already_exists", stats.AlreadyExists),
		logger.Int("skipped", stats.Skipped),
		logger.Int("notified", stats.Notified),
		logger.Int("notify_failed", stats.NotifyFailed),
		logger.Duration("duration", time.Since(start)),
	}
	if err != nil {
		log.Error("Ingestion cycle failed", append(fields, logger.Error(err))...)
	} else {
		log.Info("Ingestion cycle completed", fields...)
	}

	return stats, err
}

func (p *Pipeline) run(ctx context.Context, src Source, log logger.Logger) (CycleStats, error) {
	var stats CycleStats

	candidates, err := src.Adapter.Fetch(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	stats.Found = len(candidates)

	d := newDispatcher(ctx, p.notifier, src, len(candidates), log)
	processErr := p.process(ctx, src, candidates, d, &stats, log)
	stats.Notified, stats.NotifyFailed = d.wait()

	return stats, processErr
}

func (p *Pipeline) process(
	ctx context.Context,
	src Source,
	candidates []domain.Candidate,
	d *dispatcher,
	stats *CycleStats,
	log logger.Logger,
) error {
	for i := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("cycle interrupted: %w", ctxErr)
		}

		outcome, err := p.processCandidate(ctx, src, candidates[i], d, log)
		if err != nil {
			return err
		}

		p.count(src.Name, outcome, stats)
	}
	return nil
}

// processCandidate returns the candidate's outcome, or an error that aborts the cycle.
func (p *Pipeline) processCandidate(
	ctx context.Context,
	src Source,
	c domain.Candidate,
	d *dispatcher,
	log logger.Logger,
) (string, error) {
	knownURL, err := src.Store.ExistsByURL(ctx, c.URL)
	if err != nil {
		return "", fmt.Errorf("duplicate check by url: %w", err)
	}
	if knownURL {
		return OutcomeDuplicateURL, nil
	}

	fp, err := src.Fingerprinter.Fingerprint(ctx, c)
	if err != nil {
		fpErr := &domain.FingerprintError{URL: c.URL, Err: err}
		log.Warn("Skipping candidate without fingerprint", logger.String("url", c.URL), logger.Error(fpErr))
		return OutcomeSkipped, nil
	}

	knownFingerprint, err := src.Store.ExistsByFingerprint(ctx, fp)
	if err != nil {
		return "", fmt.Errorf("duplicate check by fingerprint: %w", err)
	}
	if knownFingerprint {
		log.Debug("Duplicate content under new URL", logger.String("url", c.URL), logger.String("fingerprint", fp))
		return OutcomeDuplicateFingerprint, nil
	}

	rec := domain.NewRecord(src.Name, c, fp)
	result, err := src.Store.Insert(ctx, rec)
	if err != nil {
		log.Error("Skipping candidate after insert failure",
			logger.String("url", c.URL),
			logger.Bool("store_error", domain.IsStoreError(err)),
			logger.Error(err),
		)
		return OutcomeSkipped, nil
	}

	if result.Outcome == domain.OutcomeAlreadyExists {
		return OutcomeAlreadyExists, nil
	}

	log.Info("New record stored",
		logger.Int64("record_id", result.ID),
		logger.String("url", rec.SourceURL),
		logger.String("name", rec.DisplayName),
	)
	d.enqueue(rec)

	return OutcomeNew, nil
}

func (p *Pipeline) count(sourceName, outcome string, stats *CycleStats) {
	switch outcome {
	case OutcomeNew:
		stats.New++
	case OutcomeDuplicateURL:
		stats.DuplicateURL++
	case OutcomeDuplicateFingerprint:
		stats.DuplicateFingerprint++
	case OutcomeAlreadyExists:
		stats.AlreadyExists++
	case OutcomeSkipped:
		stats.Skipped++
	}

	if p.recorder != nil {
		p.recorder.RecordCandidate(sourceName, outcome)
	}
}
