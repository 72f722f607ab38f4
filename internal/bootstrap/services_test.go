package bootstrap_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/harvester/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/fingerprint"
	"github.com/jonesrussell/north-cloud/harvester/internal/format"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/notifier"
)

func newServices(t *testing.T) *bootstrap.Services {
	t.Helper()

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	cfg := &config.Config{
		Sources: []config.SourceConfig{
			{Name: "fia", Kind: config.KindDocuments, URL: "https://example.com/docs", Enabled: true},
			{Name: "larnaka", Kind: config.KindEvents, URL: "https://example.com/events", Enabled: true, SettingsPrefix: "larnaka_"},
			{Name: "archive", Kind: config.KindDocuments, URL: "https://example.com/archive", Enabled: false},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	return bootstrap.SetupServices(cfg, sqlx.NewDb(mockDB, "sqlmock"), logger.NewNop())
}

func TestServices_SourceByKind(t *testing.T) {
	t.Parallel()

	s := newServices(t)

	docs, err := s.Source(s.Config.Sources[0])
	require.NoError(t, err)
	assert.IsType(t, &fingerprint.ContentFingerprinter{}, docs.Fingerprinter)
	assert.IsType(t, format.DocumentFormatter{}, docs.Formatter)
	assert.Equal(t, "fia", docs.Adapter.Name())

	events, err := s.Source(s.Config.Sources[1])
	require.NoError(t, err)
	assert.IsType(t, &fingerprint.FieldFingerprinter{}, events.Fingerprinter)
	assert.IsType(t, format.EventFormatter{}, events.Formatter)
	assert.Equal(t, notifier.FamilyTelegram, events.Destination.Family)
}

func TestServices_ManagerHasEnabledSourcesOnly(t *testing.T) {
	t.Parallel()

	s := newServices(t)

	m, err := s.NewManager()
	require.NoError(t, err)

	loops := m.Loops()
	require.Len(t, loops, 2)
	assert.Equal(t, "fia", loops[0].Name())
	assert.Equal(t, "larnaka", loops[1].Name())

	_, ok := m.Get("archive")
	assert.False(t, ok)
}

func TestServices_SettingsPrefix(t *testing.T) {
	t.Parallel()

	s := newServices(t)

	assert.Equal(t, "check_interval", s.SourceSettings(s.Config.Sources[0]).Key("check_interval"))
	assert.Equal(t, "larnaka_check_interval", s.SourceSettings(s.Config.Sources[1]).Key("check_interval"))
}

func TestNewNotifier_MissingCredentialsDoNotDeliver(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.SetDefaults()

	n := bootstrap.NewNotifier(cfg, logger.NewNop(), nil)
	t.Cleanup(func() { _ = n.Close() })

	assert.False(t, n.Deliver(context.Background(), notifier.Destination{Family: notifier.FamilyTelegram, ChatID: "1"}, "hi"))
	assert.False(t, n.Deliver(context.Background(), notifier.Destination{Family: notifier.FamilyRedis, ChatID: "c"}, "hi"))
}
