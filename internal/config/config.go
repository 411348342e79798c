// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Timing values are expressed in time units (TimeUnit) so a whole match can
//   be sped up for rehearsals by changing a single key.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"fmt"
	"time"
)

// Telemetry modes.
const (
	TelemetrySim  = "sim"
	TelemetryMQTT = "mqtt"
)

// Ledger drivers.
const (
	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text, json or console output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// TimeUnit is the length of one match time unit.
	TimeUnit time.Duration `koanf:"time_unit"`

	// IntroDwellUnits is how long the movement description is shown.
	IntroDwellUnits int `koanf:"intro_dwell_units"`

	// CountdownStart is the first countdown value shown.
	CountdownStart int `koanf:"countdown_start"`

	// SettleUnits is the pause between round 1 results and the round 2 intro.
	SettleUnits int `koanf:"settle_units"`

	// AutostartDelay is the pause between observing a new match and its intro.
	AutostartDelay time.Duration `koanf:"autostart_delay"`

	// FinalSampleDelay lets the bands flush their last reading after capture stops.
	FinalSampleDelay time.Duration `koanf:"final_sample_delay"`

	// RoundClockInterval is how often the round clock checks for expiry.
	RoundClockInterval time.Duration `koanf:"round_clock_interval"`

	// SampleIntervalUnits is the live score refresh period.
	SampleIntervalUnits int `koanf:"sample_interval_units"`

	// LeaderboardDelayUnits keeps the result screen up before the rotation starts.
	LeaderboardDelayUnits int `koanf:"leaderboard_delay_units"`

	// LeaderboardIntervalUnits is the rotation period between metrics.
	LeaderboardIntervalUnits int `koanf:"leaderboard_interval_units"`

	// LeaderboardSize is the number of rows shown by the rotation.
	LeaderboardSize int `koanf:"leaderboard_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// InboxSize bounds the state machine inbox.
	InboxSize int `koanf:"inbox_size"`

	// GuardSize bounds the one-shot effect guard.
	GuardSize int `koanf:"guard_size"`

	// PointsReason tags ledger point credits.
	PointsReason string `koanf:"points_reason"`

	// VictoryReason tags ledger victory credits.
	VictoryReason string `koanf:"victory_reason"`

	// TelemetryMode is "sim" (in-process bands) or "mqtt".
	TelemetryMode string `koanf:"telemetry_mode"`

	MQTTBroker      string        `koanf:"mqtt_broker"`
	MQTTTopicPrefix string        `koanf:"mqtt_topic_prefix"`
	MQTTUsername    string        `koanf:"mqtt_username"`
	MQTTPassword    string        `koanf:"mqtt_password"`
	MQTTTimeout     time.Duration `koanf:"mqtt_timeout"`

	// LedgerDriver is "memory" or "sqlite".
	LedgerDriver string `koanf:"ledger_driver"`

	// LedgerDSN is the sqlite data source name.
	LedgerDSN string `koanf:"ledger_dsn"`

	// WSWriteTimeout bounds a single websocket write.
	WSWriteTimeout time.Duration `koanf:"ws_write_timeout"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		TimeUnit:                 time.Second,
		IntroDwellUnits:          5,
		CountdownStart:           3,
		SettleUnits:              3,
		AutostartDelay:           time.Second,
		FinalSampleDelay:         500 * time.Millisecond,
		RoundClockInterval:       100 * time.Millisecond,
		SampleIntervalUnits:      1,
		LeaderboardDelayUnits:    8,
		LeaderboardIntervalUnits: 8,
		LeaderboardSize:          10,
		MaxLeaderboardLimit:      100,
		InboxSize:                256,
		GuardSize:                1024,
		PointsReason:             "Pontos ganhos no Jogo de Movimento",
		VictoryReason:            "Vitória no Jogo de Movimento",
		TelemetryMode:            TelemetrySim,
		MQTTBroker:               "tcp://localhost:1883",
		MQTTTopicPrefix:          "bands",
		MQTTTimeout:              5 * time.Second,
		LedgerDriver:             LedgerMemory,
		LedgerDSN:                "file:duel.db?_pragma=busy_timeout(5000)",
		WSWriteTimeout:           10 * time.Second,
	}
}

// Units converts a count of time units into a duration.
func (c *Config) Units(n int) time.Duration {
	return time.Duration(n) * c.TimeUnit
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.TimeUnit <= 0:
		return fmt.Errorf("%w: time_unit must be positive", ErrInvalidConfig)
	case c.IntroDwellUnits <= 0, c.CountdownStart <= 0, c.SettleUnits < 0:
		return fmt.Errorf("%w: phase units must be positive", ErrInvalidConfig)
	case c.SampleIntervalUnits <= 0, c.LeaderboardIntervalUnits <= 0, c.LeaderboardDelayUnits < 0:
		return fmt.Errorf("%w: tick units must be positive", ErrInvalidConfig)
	case c.RoundClockInterval <= 0:
		return fmt.Errorf("%w: round_clock_interval must be positive", ErrInvalidConfig)
	case c.LeaderboardSize <= 0 || c.LeaderboardSize > c.MaxLeaderboardLimit:
		return fmt.Errorf("%w: leaderboard_size must be in 1..max_leaderboard_limit", ErrInvalidConfig)
	case c.InboxSize <= 0:
		return fmt.Errorf("%w: inbox_size must be positive", ErrInvalidConfig)
	}

	switch c.TelemetryMode {
	case TelemetrySim:
	case TelemetryMQTT:
		if c.MQTTBroker == "" {
			return fmt.Errorf("%w: mqtt_broker is required in mqtt mode", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown telemetry_mode %q", ErrInvalidConfig, c.TelemetryMode)
	}

	switch c.LedgerDriver {
	case LedgerMemory:
	case LedgerSQLite:
		if c.LedgerDSN == "" {
			return fmt.Errorf("%w: ledger_dsn is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ledger_driver %q", ErrInvalidConfig, c.LedgerDriver)
	}
	return nil
}
