package replay

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// IntField extracts an integral number from a JSON payload field.
// Numeric strings are accepted; fractional values, booleans and
// missing fields are not.
func IntField(payload []byte, field string) (int, bool) {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return 0, false
	}
	r := gjson.GetBytes(payload, field)
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// PositionFromPayload returns the race position carried by a POSITION
// payload. Positions below 1 are treated as absent.
func PositionFromPayload(payload []byte) (int, bool) {
	p, ok := IntField(payload, "position")
	if !ok || p < 1 {
		return 0, false
	}
	return p, true
}
