package bootstrap

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/database"
	"github.com/jonesrussell/north-cloud/harvester/internal/fingerprint"
	"github.com/jonesrussell/north-cloud/harvester/internal/format"
	"github.com/jonesrussell/north-cloud/harvester/internal/ingest"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/metrics"
	"github.com/jonesrussell/north-cloud/harvester/internal/notifier"
	"github.com/jonesrussell/north-cloud/harvester/internal/scheduler"
	"github.com/jonesrussell/north-cloud/harvester/internal/settings"
	"github.com/jonesrussell/north-cloud/harvester/internal/source"
)

const (
	httpIdleConnTimeout = 90 * time.Second
	httpMaxIdleConns    = 16
)

// Services holds the wired components shared by every command.
type Services struct {
	Config   *config.Config
	Log      logger.Logger
	DB       *sqlx.DB
	Records  *database.RecordRepository
	Settings *database.SettingRepository
	Notifier *notifier.Notifier
	Pipeline *ingest.Pipeline
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	httpClient *http.Client
}

// SetupServices wires repositories, notifier and pipeline around db.
func SetupServices(cfg *config.Config, db *sqlx.DB, log logger.Logger) *Services {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	n := NewNotifier(cfg, log, m)

	return &Services{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Records:  database.NewRecordRepository(db),
		Settings: database.NewSettingRepository(db),
		Notifier: n,
		Pipeline: ingest.NewPipeline(n, log, ingest.WithRecorder(m)),
		Metrics:  m,
		Registry: reg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        httpMaxIdleConns,
				MaxIdleConnsPerHost: httpMaxIdleConns,
				IdleConnTimeout:     httpIdleConnTimeout,
			},
		},
	}
}

// NewNotifier registers every destination family. Families without
// credentials fail at delivery time with notifier.ErrNotConfigured.
func NewNotifier(cfg *config.Config, log logger.Logger, recorder notifier.Recorder) *notifier.Notifier {
	nc := cfg.Notifier

	opts := []notifier.Option{
		notifier.WithTransport(notifier.FamilyTelegram, func() (notifier.Transport, error) {
			return notifier.NewTelegramTransport(notifier.TelegramConfig{
				Token:           nc.TelegramToken,
				APIURL:          nc.TelegramAPIURL,
				Timeout:         nc.SendTimeout,
				MaxConnsPerHost: nc.MaxConnsPerHost,
			})
		}),
		notifier.WithTransport(notifier.FamilyRedis, func() (notifier.Transport, error) {
			return notifier.NewRedisTransport(notifier.RedisConfig{
				Address:  cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		}),
	}
	if recorder != nil {
		opts = append(opts, notifier.WithRecorder(recorder))
	}

	return notifier.New(notifier.Config{
		MaxAttempts: nc.MaxAttempts,
		BaseDelay:   nc.BaseDelay,
		MaxDelay:    nc.MaxDelay,
		SendTimeout: nc.SendTimeout,
	}, log, opts...)
}

// SourceSettings returns the settings service of sc's loop.
func (s *Services) SourceSettings(sc config.SourceConfig) *settings.Service {
	defaultInterval := time.Duration(s.Config.Scheduler.CheckInterval) * time.Second
	return settings.New(s.Settings, sc.SettingsPrefix, defaultInterval, s.Log.With(logger.Source(sc.Name)))
}

// Source builds the ingestion source for sc.
func (s *Services) Source(sc config.SourceConfig) (ingest.Source, error) {
	log := s.Log.With(logger.Source(sc.Name))

	adapter, err := source.New(sc, s.httpClient, log)
	if err != nil {
		return ingest.Source{}, fmt.Errorf("source %s: %w", sc.Name, err)
	}

	var fp fingerprint.Fingerprinter
	switch sc.Kind {
	case config.KindDocuments:
		fp = fingerprint.NewContentFingerprinter(s.httpClient, sc.UserAgent, sc.RequestTimeout, log)
	default:
		fp = fingerprint.NewFieldFingerprinter()
	}

	return ingest.Source{
		Name:          sc.Name,
		Adapter:       adapter,
		Fingerprinter: fp,
		Formatter:     format.ForKind(sc.Kind),
		Destination: notifier.Destination{
			Family: sc.Destination.Family,
			ChatID: sc.Destination.ChatID,
		},
		Store: s.Records.ForSource(sc.Name),
	}, nil
}

// NewLoop builds the control loop of sc.
func (s *Services) NewLoop(sc config.SourceConfig) (*scheduler.Loop, error) {
	src, err := s.Source(sc)
	if err != nil {
		return nil, err
	}

	return scheduler.New(
		src,
		s.SourceSettings(sc),
		s.Pipeline,
		scheduler.Config{
			Slice:         s.Config.Scheduler.Slice,
			RecoveryDelay: s.Config.Scheduler.RecoveryDelay,
		},
		s.Log,
		scheduler.WithRecorder(s.Metrics),
	), nil
}

// NewManager builds one loop per enabled source.
func (s *Services) NewManager() (*scheduler.Manager, error) {
	m := scheduler.NewManager()
	for _, sc := range s.Config.EnabledSources() {
		loop, err := s.NewLoop(sc)
		if err != nil {
			return nil, err
		}
		m.Add(loop)
	}
	return m, nil
}

// Close releases the notifier transports and the database.
func (s *Services) Close() {
	if err := s.Notifier.Close(); err != nil {
		s.Log.Warn("Failed to close notifier", logger.Error(err))
	}
	s.httpClient.CloseIdleConnections()
	if err := database.Close(s.DB); err != nil {
		s.Log.Error("Failed to close database", logger.Error(err))
	}
}
