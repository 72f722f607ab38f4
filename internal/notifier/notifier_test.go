package notifier_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/notifier"
)

// scriptedTransport returns the scripted errors in order, then succeeds.
type scriptedTransport struct {
	mu     sync.Mutex
	errs   []error
	sent   []string
	closed bool
}

func (s *scriptedTransport) Send(_ context.Context, chatID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, chatID+":"+message)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedTransport) Ping(context.Context) error { return nil }

func (s *scriptedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedTransport) sends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

type deliveryRecord struct {
	family    string
	delivered bool
	attempts  int
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []deliveryRecord
}

func (f *fakeRecorder) RecordDelivery(family string, delivered bool, attempts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, deliveryRecord{family: family, delivered: delivered, attempts: attempts})
}

func retryable(msg string) error {
	return &notifier.DeliveryError{Class: notifier.ClassRetryable, Family: "fake", Err: errors.New(msg)}
}

func permanent(msg string) error {
	return &notifier.DeliveryError{Class: notifier.ClassPermanent, Family: "fake", StatusCode: 400, Err: errors.New(msg)}
}

func newTestNotifier(t *testing.T, transport *scriptedTransport, opts ...notifier.Option) (*notifier.Notifier, *sleepRecorder) {
	t.Helper()

	sleeper := &sleepRecorder{}
	opts = append([]notifier.Option{
		notifier.WithTransport("fake", func() (notifier.Transport, error) { return transport, nil }),
		notifier.WithSleep(sleeper.sleep),
	}, opts...)

	n := notifier.New(notifier.Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		SendTimeout: time.Second,
	}, logger.NewNop(), opts...)

	return n, sleeper
}

var fakeDest = notifier.Destination{Family: "fake", ChatID: "chat-1"}

func TestDeliver_RetryableThenSuccess(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{errs: []error{retryable("pool timeout"), retryable("timeout")}}
	rec := &fakeRecorder{}
	n, sleeper := newTestNotifier(t, transport, notifier.WithRecorder(rec))

	ok := n.Deliver(context.Background(), fakeDest, "hello")

	assert.True(t, ok)
	assert.Equal(t, 3, transport.sends())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.delays)
	require.Len(t, rec.records, 1)
	assert.Equal(t, deliveryRecord{family: "fake", delivered: true, attempts: 3}, rec.records[0])
}

func TestDeliver_PermanentFailsOnce(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{errs: []error{permanent("chat not found")}}
	n, sleeper := newTestNotifier(t, transport)

	ok := n.Deliver(context.Background(), fakeDest, "hello")

	assert.False(t, ok)
	assert.Equal(t, 1, transport.sends())
	assert.Empty(t, sleeper.delays)
}

func TestDeliver_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{errs: []error{
		retryable("timeout"), retryable("timeout"), retryable("timeout"), retryable("timeout"),
	}}
	n, sleeper := newTestNotifier(t, transport)

	ok := n.Deliver(context.Background(), fakeDest, "hello")

	assert.False(t, ok)
	assert.Equal(t, 3, transport.sends())
	assert.Len(t, sleeper.delays, 2)
}

func TestDeliver_SessionInvalidatedRecreatesTransport(t *testing.T) {
	t.Parallel()

	first := &scriptedTransport{errs: []error{fmt.Errorf("write: %w", net.ErrClosed)}}
	second := &scriptedTransport{}
	created := 0

	sleeper := &sleepRecorder{}
	n := notifier.New(notifier.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, logger.NewNop(),
		notifier.WithSleep(sleeper.sleep),
		notifier.WithTransport("fake", func() (notifier.Transport, error) {
			created++
			if created == 1 {
				return first, nil
			}
			return second, nil
		}),
	)

	ok := n.Deliver(context.Background(), fakeDest, "hello")

	assert.True(t, ok)
	assert.Equal(t, 2, created)
	assert.True(t, first.closed, "invalidated transport must be closed")
	assert.Equal(t, 1, second.sends())
}

func TestDeliver_TransportReused(t *testing.T) {
	t.Parallel()

	created := 0
	transport := &scriptedTransport{}
	n := notifier.New(notifier.Config{}, logger.NewNop(),
		notifier.WithTransport("fake", func() (notifier.Transport, error) {
			created++
			return transport, nil
		}),
	)

	for range 3 {
		require.True(t, n.Deliver(context.Background(), fakeDest, "hello"))
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 3, transport.sends())
}

func TestDeliver_NotConfigured(t *testing.T) {
	t.Parallel()

	n := notifier.New(notifier.Config{}, logger.NewNop(),
		notifier.WithTransport(notifier.FamilyTelegram, func() (notifier.Transport, error) {
			return notifier.NewTelegramTransport(notifier.TelegramConfig{})
		}),
	)

	ok := n.Deliver(context.Background(), notifier.Destination{Family: notifier.FamilyTelegram, ChatID: "1"}, "hello")
	assert.False(t, ok)
}

func TestDeliver_UnknownFamily(t *testing.T) {
	t.Parallel()

	n := notifier.New(notifier.Config{}, logger.NewNop())

	assert.False(t, n.Deliver(context.Background(), notifier.Destination{Family: "smoke-signal"}, "hello"))
	assert.ErrorIs(t, n.Ping(context.Background(), notifier.Destination{Family: "smoke-signal"}), notifier.ErrUnknownFamily)
}

func TestDeliver_CancelledContext(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{}
	n, _ := newTestNotifier(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, n.Deliver(ctx, fakeDest, "hello"))
	assert.Zero(t, transport.sends())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want notifier.ErrorClass
	}{
		{name: "delivery error keeps class", err: permanent("bad request"), want: notifier.ClassPermanent},
		{name: "deadline", err: context.DeadlineExceeded, want: notifier.ClassRetryable},
		{name: "cancelled", err: context.Canceled, want: notifier.ClassPermanent},
		{name: "closed connection", err: fmt.Errorf("read: %w", net.ErrClosed), want: notifier.ClassSessionInvalidated},
		{name: "event loop message", err: errors.New("Event loop is closed"), want: notifier.ClassSessionInvalidated},
		{name: "pool timeout", err: errors.New("Pool timeout: all connections busy"), want: notifier.ClassRetryable},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), want: notifier.ClassRetryable},
		{name: "not configured", err: fmt.Errorf("x: %w", notifier.ErrNotConfigured), want: notifier.ClassPermanent},
		{name: "unrecognized", err: errors.New("message is too long"), want: notifier.ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, notifier.Classify(tt.err))
		})
	}
}
