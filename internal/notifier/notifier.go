// Package notifier delivers messages to destination channels with bounded
// retries.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/retry"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultSendTimeout = 30 * time.Second
	backoffMultiplier  = 2.0
)

// Destination addresses one channel of a family.
type Destination struct {
	Family string `json:"family"`
	ChatID string `json:"chat_id"`
}

// Transport sends messages for one destination family.
type Transport interface {
	Send(ctx context.Context, chatID, message string) error
	Ping(ctx context.Context) error
	Close() error
}

// TransportFactory creates a transport. It is called lazily and again after
// a transport's session is invalidated.
type TransportFactory func() (Transport, error)

// Recorder receives delivery outcomes.
type Recorder interface {
	RecordDelivery(family string, delivered bool, attempts int)
}

// Config bounds delivery retries.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	SendTimeout time.Duration
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithTransport registers the factory for a destination family.
func WithTransport(family string, factory TransportFactory) Option {
	return func(n *Notifier) { n.factories[family] = factory }
}

// WithSleep replaces the backoff timer.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(n *Notifier) { n.sleep = sleep }
}

// WithRecorder reports delivery outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

// Notifier delivers messages. One transport per family is created on first
// use and reused until its session is invalidated.
type Notifier struct {
	cfg       Config
	factories map[string]TransportFactory
	sleep     retry.SleepFunc
	recorder  Recorder
	log       logger.Logger
	tracer    trace.Tracer

	mu         sync.Mutex
	transports map[string]Transport
}

// New creates a Notifier.
func New(cfg Config, log logger.Logger, opts ...Option) *Notifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	n := &Notifier{
		cfg:        cfg,
		factories:  make(map[string]TransportFactory),
		sleep:      retry.SleepContext,
		log:        log,
		tracer:     otel.Tracer("harvester-notifier"),
		transports: make(map[string]Transport),
	}
	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Deliver sends message to dest and reports whether it was accepted.
// Failures are logged; they are never returned.
func (n *Notifier) Deliver(ctx context.Context, dest Destination, message string) bool {
	deliveryID := uuid.NewString()
	log := n.log.With(
		logger.String("delivery_id", deliveryID),
		logger.String("family", dest.Family),
		logger.String("chat_id", dest.ChatID),
	)

	ctx, span := n.tracer.Start(ctx, "notifier.deliver",
		trace.WithAttributes(
			attribute.String("delivery_id", deliveryID),
			attribute.String("family", dest.Family),
		))
	defer span.End()

	attempts := 0
	err := retry.Retry(ctx, retry.Config{
		MaxAttempts:  n.cfg.MaxAttempts,
		InitialDelay: n.cfg.BaseDelay,
		MaxDelay:     n.cfg.MaxDelay,
		Multiplier:   backoffMultiplier,
		IsRetryable: func(err error) bool {
			return Classify(err) != ClassPermanent
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("Delivery attempt failed, retrying",
				logger.Int("attempt", attempt),
				logger.Int("max_attempts", n.cfg.MaxAttempts),
				logger.String("error_class", string(Classify(err))),
				logger.Duration("delay", delay),
				logger.Error(err),
			)
		},
		Sleep: n.sleep,
	}, func() error {
		attempts++
		return n.attempt(ctx, dest, message)
	})

	span.SetAttributes(attribute.Int("attempts", attempts))
	if n.recorder != nil {
		n.recorder.RecordDelivery(dest.Family, err == nil, attempts)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")

		if errors.Is(err, ErrNotConfigured) {
			log.Warn("Notifications disabled for destination", logger.Error(err))
			return false
		}

		log.Error("Delivery failed",
			logger.Int("attempts", attempts),
			logger.String("error_class", string(Classify(err))),
			logger.Error(err),
		)
		return false
	}

	log.Info("Message delivered", logger.Int("attempts", attempts))
	return true
}

// Ping checks that dest's transport can reach its backend.
func (n *Notifier) Ping(ctx context.Context, dest Destination) error {
	t, err := n.transport(dest.Family)
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()

	if pingErr := t.Ping(pingCtx); pingErr != nil {
		return fmt.Errorf("ping %s: %w", dest.Family, pingErr)
	}
	return nil
}

// Close releases every transport.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	for family, t := range n.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s transport: %w", family, err))
		}
		delete(n.transports, family)
	}
	return errors.Join(errs...)
}

func (n *Notifier) attempt(ctx context.Context, dest Destination, message string) error {
	t, err := n.transport(dest.Family)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()

	sendErr := t.Send(sendCtx, dest.ChatID, message)
	if sendErr != nil && Classify(sendErr) == ClassSessionInvalidated {
		n.reset(dest.Family, t)
	}
	return sendErr
}

// transport returns the live transport for family, creating it if needed.
func (n *Notifier) transport(family string) (Transport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.transports[family]; ok {
		return t, nil
	}

	factory, ok := n.factories[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}

	t, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create %s transport: %w", family, err)
	}

	n.transports[family] = t
	return t, nil
}

// reset discards t so the next attempt builds a fresh transport.
func (n *Notifier) reset(family string, t Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if current, ok := n.transports[family]; ok && current == t {
		delete(n.transports, family)
		if err := t.Close(); err != nil {
			n.log.Debug("Closing invalidated transport failed",
				logger.String("family", family),
				logger.Error(err),
			)
		}
		n.log.Info("Transport session reset", logger.String("family", family))
	}
}
