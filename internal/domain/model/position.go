package model

import (
	"encoding/json"
)

// Position is a race position that may be unknown.
// The zero value is unknown.
type Position struct {
	value int
	known bool
}

// KnownPosition returns a known position n.
func KnownPosition(n int) Position {
	return Position{value: n, known: true}
}

// UnknownPosition returns the unknown position.
func UnknownPosition() Position {
	return Position{}
}

// Get returns the position and whether it is known.
func (p Position) Get() (int, bool) {
	return p.value, p.known
}

// IsKnown reports whether the position is known.
func (p Position) IsKnown() bool {
	return p.known
}

// Is reports whether p is known and equal to n.
func (p Position) Is(n int) bool {
	return p.known && p.value == n
}

// Less orders positions ascending with unknown after every known position.
// Two unknowns are never less than each other.
func (p Position) Less(other Position) bool {
	switch {
	case p.known && other.known:
		return p.value < other.value
	case p.known:
		return true
	default:
		return false
	}
}

// MarshalJSON encodes a known position as a number and unknown as null.
func (p Position) MarshalJSON() ([]byte, error) {
	if !p.known {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON accepts a number or null.
func (p *Position) UnmarshalJSON(data []byte) error {
	var v *int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*p = UnknownPosition()
		return nil
	}
	*p = KnownPosition(*v)
	return nil
}

// ObservedTime is the session time of an observation that may be unknown.
type ObservedTime struct {
	sec   float64
	known bool
}

// KnownTime returns a known observation time.
func KnownTime(sec float64) ObservedTime {
	return ObservedTime{sec: sec, known: true}
}

// Get returns the time and whether it is known.
func (t ObservedTime) Get() (float64, bool) {
	return t.sec, t.known
}

// MarshalJSON encodes a known time as a number and unknown as null.
func (t ObservedTime) MarshalJSON() ([]byte, error) {
	if !t.known {
		return []byte("null"), nil
	}
	return json.Marshal(t.sec)
}

// UnmarshalJSON accepts a number or null.
func (t *ObservedTime) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*t = ObservedTime{}
		return nil
	}
	*t = KnownTime(*v)
	return nil
}
