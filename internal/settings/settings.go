// Package settings exposes typed access to the runtime control values
// stored in the settings table.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
)

// ErrIntervalOutOfRange is returned when a check interval is outside the allowed bounds.
var ErrIntervalOutOfRange = errors.New("check interval out of range")

// fallbackInterval matches domain.DefaultCheckInterval.
const fallbackInterval = 3600 * time.Second

// Store is the persistence the settings service reads and writes.
type Store interface {
	Get(ctx context.Context, key string) (*domain.Setting, error)
	Set(ctx context.Context, key, value, actor string) error
	ConsumeFlag(ctx context.Context, key, actor string) (bool, error)
	List(ctx context.Context) ([]*domain.Setting, error)
}

// Snapshot is a point-in-time view of one loop's settings.
type Snapshot struct {
	CheckInterval time.Duration `json:"-"`
	IntervalSecs  int           `json:"check_interval_seconds"`
	Enabled       bool          `json:"enabled"`
	ForceCheck    bool          `json:"force_check"`
	LastCheck     time.Time     `json:"last_check_time"`
}

// Service reads and writes the settings of one control loop. Keys are
// namespaced with the loop's prefix.
type Service struct {
	store           Store
	prefix          string
	defaultInterval time.Duration
	log             logger.Logger
}

// New creates a settings service. defaultInterval is used whenever the
// stored check interval is missing or unreadable.
func New(store Store, prefix string, defaultInterval time.Duration, log logger.Logger) *Service {
	if defaultInterval <= 0 {
		defaultInterval = fallbackInterval
	}
	return &Service{
		store:           store,
		prefix:          prefix,
		defaultInterval: defaultInterval,
		log:             log,
	}
}

// Key returns the namespaced storage key for name.
func (s *Service) Key(name string) string {
	return s.prefix + name
}

// CheckInterval returns the configured interval between cycles. Stored
// values outside the allowed bounds are clamped to them.
func (s *Service) CheckInterval(ctx context.Context) time.Duration {
	raw, ok := s.read(ctx, domain.SettingCheckInterval)
	if !ok {
		return s.defaultInterval
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds <= 0 {
		s.log.Warn("Invalid check interval stored, using default",
			logger.String("key", s.Key(domain.SettingCheckInterval)),
			logger.String("value", raw),
		)
		return s.defaultInterval
	}

	clamped := min(max(seconds, domain.MinCheckIntervalSeconds), domain.MaxCheckIntervalSeconds)
	if clamped != seconds {
		s.log.Warn("Stored check interval out of range, clamping",
			logger.String("key", s.Key(domain.SettingCheckInterval)),
			logger.Int("value", seconds),
			logger.Int("clamped", clamped),
		)
	}

	return time.Duration(clamped) * time.Second
}

// Enabled reports whether the loop should run cycles.
func (s *Service) Enabled(ctx context.Context) bool {
	raw, ok := s.read(ctx, domain.SettingScraperEnabled)
	if !ok {
		return parseFlag(domain.DefaultScraperEnabled)
	}
	return parseFlag(raw)
}

// ConsumeForceCheck reports whether a check was requested and clears the
// request in the same operation.
func (s *Service) ConsumeForceCheck(ctx context.Context) bool {
	forced, err := s.store.ConsumeFlag(ctx, s.Key(domain.SettingForceCheck), domain.ActorSystem)
	if err != nil {
		s.log.Warn("Failed to read force check flag",
			logger.String("key", s.Key(domain.SettingForceCheck)),
			logger.Error(err),
		)
		return false
	}
	return forced
}

// LastCheck returns the completion time of the last cycle, or the zero time.
func (s *Service) LastCheck(ctx context.Context) time.Time {
	raw, ok := s.read(ctx, domain.SettingLastCheckTime)
	if !ok {
		return time.Time{}
	}

	unix, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

// MarkChecked records the completion time of a cycle.
func (s *Service) MarkChecked(ctx context.Context, at time.Time) error {
	return s.write(ctx, domain.SettingLastCheckTime, strconv.FormatInt(at.Unix(), 10), domain.ActorSystem)
}

// SetCheckInterval stores a new interval in seconds.
func (s *Service) SetCheckInterval(ctx context.Context, seconds int, actor string) error {
	if seconds < domain.MinCheckIntervalSeconds || seconds > domain.MaxCheckIntervalSeconds {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrIntervalOutOfRange,
			seconds, domain.MinCheckIntervalSeconds, domain.MaxCheckIntervalSeconds)
	}
	return s.write(ctx, domain.SettingCheckInterval, strconv.Itoa(seconds), actor)
}

// SetEnabled turns the loop on or off.
func (s *Service) SetEnabled(ctx context.Context, enabled bool, actor string) error {
	return s.write(ctx, domain.SettingScraperEnabled, strconv.FormatBool(enabled), actor)
}

// RequestCheck asks the loop to run a cycle at its next slice.
func (s *Service) RequestCheck(ctx context.Context, actor string) error {
	return s.write(ctx, domain.SettingForceCheck, "true", actor)
}

// Snapshot reads all settings of this loop without consuming the force flag.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	interval := s.CheckInterval(ctx)

	forced := false
	if raw, ok := s.read(ctx, domain.SettingForceCheck); ok {
		forced = parseFlag(raw)
	}

	return Snapshot{
		CheckInterval: interval,
		IntervalSecs:  int(interval / time.Second),
		Enabled:       s.Enabled(ctx),
		ForceCheck:    forced,
		LastCheck:     s.LastCheck(ctx),
	}
}

// Get returns the raw stored setting for name within this loop's namespace.
func (s *Service) Get(ctx context.Context, name string) (*domain.Setting, error) {
	return s.store.Get(ctx, s.Key(name))
}

// read returns the stored value and false when it is missing or unreadable.
func (s *Service) read(ctx context.Context, name string) (string, bool) {
	setting, err := s.store.Get(ctx, s.Key(name))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("Failed to read setting, using default",
				logger.String("key", s.Key(name)),
				logger.Error(err),
			)
		}
		return "", false
	}
	return setting.Value, true
}

func (s *Service) write(ctx context.Context, name, value, actor string) error {
	if actor == "" {
		actor = domain.ActorSystem
	}

	if err := s.store.Set(ctx, s.Key(name), value, actor); err != nil {
		s.log.Error("Failed to write setting",
			logger.String("key", s.Key(name)),
			logger.String("value", value),
			logger.String("actor", actor),
			logger.Error(err),
		)
		return fmt.Errorf("set %s: %w", s.Key(name), err)
	}

	s.log.Info("Setting updated",
		logger.String("key", s.Key(name)),
		logger.String("value", value),
		logger.String("actor", actor),
	)
	return nil
}

func parseFlag(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}
