package domain

import "time"

// Setting keys read and written by the control loop.
const (
	SettingCheckInterval  = "check_interval"
	SettingScraperEnabled = "scraper_enabled"
	SettingForceCheck     = "force_check"
	SettingLastCheckTime  = "last_check_time"
)

// Setting defaults, stored as strings like every setting value.
const (
	DefaultCheckInterval  = "3600"
	DefaultScraperEnabled = "true"
	DefaultForceCheck     = "false"
	DefaultLastCheckTime  = "0"
)

// Check interval bounds in seconds.
const (
	MinCheckIntervalSeconds = 60
	MaxCheckIntervalSeconds = 86400
)

// Actors recorded on setting writes made by the service itself.
const (
	ActorSystem = "system"
	ActorCLI    = "cli"
	ActorAPI    = "api"
)

// Setting is a named runtime control value.
type Setting struct {
	Key       string    `db:"key"        json:"key"`
	Value     string    `db:"value"      json:"value"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
