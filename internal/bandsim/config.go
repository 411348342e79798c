// Package bandsim stands in for the physical bands and drives whole matches
// against a running display service.
package bandsim

import (
	"time"

	"github.com/okian/duel/internal/domain/model"
)

// Config holds the simulated bands' broker settings.
type Config struct {
	Broker      string        // MQTT broker URL
	TopicPrefix string        // Topic prefix shared with the display
	Username    string        // Optional broker username
	Password    string        // Optional broker password
	ClientID    string        // MQTT client id; generated when empty
	Bands       []string      // Telemetry ids to answer for
	Interval    time.Duration // Publish period while capturing
	Timeout     time.Duration // Broker operation timeout
	Seed        int64         // Random walk seed
	Step        float64       // Largest increment per reading
	Ceiling     float64       // Largest absolute axis value
}

// PlayConfig holds settings for driving one match over HTTP.
type PlayConfig struct {
	BaseURL  string        // Base URL of the display service
	Timeout  time.Duration // HTTP request timeout
	Poll     time.Duration // Display polling period
	Deadline time.Duration // Give up when the match has not finished by then
	Rounds   [model.RoundCount]model.Round
	Users    map[model.BandID]model.BandAssignment
}

// DefaultConfig returns settings matching the display's defaults.
func DefaultConfig() Config {
	return Config{
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "bands",
		Bands:       []string{model.Band010.TelemetryID(), model.Band020.TelemetryID()},
		Interval:    250 * time.Millisecond,
		Timeout:     5 * time.Second,
		Seed:        time.Now().UnixNano(),
		Step:        12,
		Ceiling:     500,
	}
}

// DefaultPlayConfig returns a two-round match between two guest users.
func DefaultPlayConfig() PlayConfig {
	return PlayConfig{
		BaseURL:  "http://localhost:9080",
		Timeout:  10 * time.Second,
		Poll:     250 * time.Millisecond,
		Deadline: 2 * time.Minute,
		Rounds: [model.RoundCount]model.Round{
			{Movement: "Jab", Axis: model.AxisX, Duration: 10},
			{Movement: "Uppercut", Axis: model.AxisZ, Duration: 10},
		},
		Users: map[model.BandID]model.BandAssignment{
			model.Band010: {UserID: "guest-010", UserName: "Convidado 010"},
			model.Band020: {UserID: "guest-020", UserName: "Convidado 020"},
		},
	}
}
