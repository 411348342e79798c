package model

import (
	"fmt"
	"strings"
)

// BandID identifies a physical band slot in a match.
type BandID string

const (
	Band010 BandID = "band010"
	Band020 BandID = "band020"
)

// Bands lists both band slots in display order.
var Bands = []BandID{Band010, Band020}

// TelemetryID is the id the band reports under, e.g. "010".
func (b BandID) TelemetryID() string {
	return strings.TrimPrefix(string(b), "band")
}

// BandFromTelemetryID maps a telemetry id back to its slot.
func BandFromTelemetryID(id string) (BandID, bool) {
	for _, b := range Bands {
		if b.TelemetryID() == id {
			return b, true
		}
	}
	return "", false
}

func (b BandID) Valid() bool { return b == Band010 || b == Band020 }

// BandAssignment is the user bound to a band for one match.
type BandAssignment struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

// Bound reports whether a user is assigned.
func (a BandAssignment) Bound() bool { return a.UserID != "" }

// Axis selects one channel of a band's motion sensor.
type Axis string

const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"
)

// ParseAxis accepts x, y or z in any case.
func ParseAxis(s string) (Axis, error) {
	switch a := Axis(strings.ToUpper(strings.TrimSpace(s))); a {
	case AxisX, AxisY, AxisZ:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAxis, s)
	}
}

// BandScoreSnapshot is one signed reading per axis.
type BandScoreSnapshot map[Axis]float64

// Value returns the reading for axis, 0 when absent.
func (s BandScoreSnapshot) Value(axis Axis) float64 {
	return s[axis]
}

// Winner is a band id, tie, or unset.
type Winner string

const (
	WinnerNone    Winner = ""
	WinnerBand010 Winner = Winner(Band010)
	WinnerBand020 Winner = Winner(Band020)
	WinnerTie     Winner = "tie"
)

// Band returns the winning band, false for tie or unset.
func (w Winner) Band() (BandID, bool) {
	b := BandID(w)
	return b, b.Valid()
}

func (w Winner) Decided() bool { return w != WinnerNone }
