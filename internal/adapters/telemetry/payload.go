// Package telemetry talks to the motion bands: capture control and the
// latest score readings.
package telemetry

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/okian/duel/internal/domain/model"
)

// Control commands sent to a band.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// AxisReading is one axis value as reported by a band.
type AxisReading struct {
	Value float64 `json:"value"`
}

// ScoresPayload is the body published on a band's scores topic.
type ScoresPayload struct {
	ScoreX *AxisReading `json:"scoreX,omitempty"`
	ScoreY *AxisReading `json:"scoreY,omitempty"`
	ScoreZ *AxisReading `json:"scoreZ,omitempty"`
}

// ControlPayload is the body published on a band's control topic.
type ControlPayload struct {
	Command string `json:"command"`
	TS      int64  `json:"ts"`
}

// Snapshot converts the payload, leaving out absent axes.
func (p ScoresPayload) Snapshot() model.BandScoreSnapshot {
	snap := make(model.BandScoreSnapshot, 3)
	for axis, r := range map[model.Axis]*AxisReading{model.AxisX: p.ScoreX, model.AxisY: p.ScoreY, model.AxisZ: p.ScoreZ} {
		if r != nil {
			snap[axis] = r.Value
		}
	}
	return snap
}

// PayloadFromSnapshot is the inverse of Snapshot.
func PayloadFromSnapshot(s model.BandScoreSnapshot) ScoresPayload {
	var p ScoresPayload
	if v, ok := s[model.AxisX]; ok {
		p.ScoreX = &AxisReading{Value: v}
	}
	if v, ok := s[model.AxisY]; ok {
		p.ScoreY = &AxisReading{Value: v}
	}
	if v, ok := s[model.AxisZ]; ok {
		p.ScoreZ = &AxisReading{Value: v}
	}
	return p
}

// DecodeScores parses a scores message body.
func DecodeScores(body []byte) (model.BandScoreSnapshot, error) {
	var p ScoresPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrap(ErrBadPayload, err.Error())
	}
	return p.Snapshot(), nil
}

// DecodeControl parses a control message body.
func DecodeControl(body []byte) (ControlPayload, error) {
	var p ControlPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return p, errors.Wrap(ErrBadPayload, err.Error())
	}
	switch p.Command {
	case CommandStart, CommandStop:
		return p, nil
	default:
		return p, errors.Wrapf(ErrBadPayload, "unknown command %q", p.Command)
	}
}

// ControlTopic is where capture commands for id are published.
func ControlTopic(prefix, id string) string { return prefix + "/" + id + "/control" }

// ScoresTopic is where id publishes its readings.
func ScoresTopic(prefix, id string) string { return prefix + "/" + id + "/scores" }

// ScoresWildcard matches the scores topic of every band.
func ScoresWildcard(prefix string) string { return prefix + "/+/scores" }

// ControlWildcard matches the control topic of every band.
func ControlWildcard(prefix string) string { return prefix + "/+/control" }

// IDFromTopic extracts the band id from a band topic under prefix.
func IDFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// readings caches the latest snapshot per band id.
type readings struct {
	mu     sync.RWMutex
	latest map[string]model.BandScoreSnapshot
}

func newReadings() *readings {
	return &readings{latest: make(map[string]model.BandScoreSnapshot)}
}

func (r *readings) put(id string, snap model.BandScoreSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[id] = snap
}

func (r *readings) get(id string) (model.BandScoreSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.latest[id]
	if !ok {
		return nil, errors.Wrapf(ErrNoReading, "band %s", id)
	}
	out := make(model.BandScoreSnapshot, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out, nil
}
