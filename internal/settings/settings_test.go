package settings_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/settings"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[string]domain.Setting
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]domain.Setting)}
}

func (m *memoryStore) Get(_ context.Context, key string) (*domain.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.values[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memoryStore) Set(_ context.Context, key, value, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.values[key] = domain.Setting{Key: key, Value: value, UpdatedBy: actor, UpdatedAt: time.Now()}
	return nil
}

func (m *memoryStore) ConsumeFlag(_ context.Context, key, actor string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	s, ok := m.values[key]
	if !ok || s.Value != "true" {
		return false, nil
	}
	m.values[key] = domain.Setting{Key: key, Value: "false", UpdatedBy: actor, UpdatedAt: time.Now()}
	return true, nil
}

func (m *memoryStore) List(_ context.Context) ([]*domain.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Setting, 0, len(m.values))
	for _, s := range m.values {
		out = append(out, &s)
	}
	return out, nil
}

func TestService_SetCheckInterval_Bounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seconds int
		wantErr bool
	}{
		{name: "below minimum", seconds: 30, wantErr: true},
		{name: "above maximum", seconds: 90000, wantErr: true},
		{name: "minimum", seconds: 60},
		{name: "maximum", seconds: 86400},
		{name: "half hour", seconds: 1800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryStore()
			svc := settings.New(store, "", time.Hour, logger.NewNop())

			err := svc.SetCheckInterval(context.Background(), tt.seconds, "cli")
			if tt.wantErr {
				require.ErrorIs(t, err, settings.ErrIntervalOutOfRange)
				_, getErr := store.Get(context.Background(), domain.SettingCheckInterval)
				assert.ErrorIs(t, getErr, domain.ErrNotFound, "rejected value must not be stored")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, time.Duration(tt.seconds)*time.Second, svc.CheckInterval(context.Background()))
		})
	}
}

func TestService_SetCheckInterval_StoresDecimalString(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc := settings.New(store, "", time.Hour, logger.NewNop())

	require.NoError(t, svc.SetCheckInterval(context.Background(), 1800, "cli"))

	stored, err := store.Get(context.Background(), domain.SettingCheckInterval)
	require.NoError(t, err)
	assert.Equal(t, "1800", stored.Value)
	assert.Equal(t, "cli", stored.UpdatedBy)
}

func TestService_ReadsFallBackToDefaults(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.err = errors.New("connection refused")
	svc := settings.New(store, "", 45*time.Minute, logger.NewNop())
	ctx := context.Background()

	assert.Equal(t, 45*time.Minute, svc.CheckInterval(ctx))
	assert.True(t, svc.Enabled(ctx))
	assert.False(t, svc.ConsumeForceCheck(ctx))
	assert.True(t, svc.LastCheck(ctx).IsZero())
}

func TestService_UnparseableIntervalFallsBack(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	require.NoError(t, store.Set(context.Background(), domain.SettingCheckInterval, "soon", "test"))
	svc := settings.New(store, "", 0, logger.NewNop())

	assert.Equal(t, time.Hour, svc.CheckInterval(context.Background()))
}

func TestService_OutOfRangeIntervalClamped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored string
		want   time.Duration
	}{
		{name: "below minimum", stored: "5", want: time.Minute},
		{name: "above maximum", stored: "90000", want: 24 * time.Hour},
		{name: "in range", stored: "1800", want: 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryStore()
			require.NoError(t, store.Set(context.Background(), domain.SettingCheckInterval, tt.stored, "sql"))
			svc := settings.New(store, "", 0, logger.NewNop())

			assert.Equal(t, tt.want, svc.CheckInterval(context.Background()))
		})
	}
}

func TestService_WriteErrorReturned(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.err = errors.New("read-only transaction")
	svc := settings.New(store, "", time.Hour, logger.NewNop())

	err := svc.SetEnabled(context.Background(), false, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.SettingScraperEnabled)
}

func TestService_ForceCheckSelfClears(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc := settings.New(store, "", time.Hour, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.RequestCheck(ctx, "api"))
	assert.True(t, svc.Snapshot(ctx).ForceCheck)

	assert.True(t, svc.ConsumeForceCheck(ctx))
	assert.False(t, svc.ConsumeForceCheck(ctx), "flag must be cleared by the first read")

	stored, err := store.Get(ctx, domain.SettingForceCheck)
	require.NoError(t, err)
	assert.Equal(t, "false", stored.Value)
}

func TestService_PrefixIsolatesLoops(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	documents := settings.New(store, "", time.Hour, logger.NewNop())
	events := settings.New(store, "events_", time.Hour, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, events.RequestCheck(ctx, "api"))
	require.NoError(t, events.SetEnabled(ctx, false, "api"))

	assert.False(t, documents.ConsumeForceCheck(ctx))
	assert.True(t, documents.Enabled(ctx))
	assert.True(t, events.ConsumeForceCheck(ctx))
	assert.False(t, events.Enabled(ctx))
	assert.Equal(t, "events_force_check", events.Key(domain.SettingForceCheck))
}

func TestService_MarkChecked(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc := settings.New(store, "", time.Hour, logger.NewNop())
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.MarkChecked(ctx, at))
	assert.Equal(t, at, svc.LastCheck(ctx))

	stored, err := store.Get(ctx, domain.SettingLastCheckTime)
	require.NoError(t, err)
	assert.Equal(t, domain.ActorSystem, stored.UpdatedBy)
}
