package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Report keys used for the two probe slots.
const (
	KeyLatency = "ipv6_latency"
	KeyLookup  = "ipv6_lookup"
)

// Wire codes for values that carry no latency.
const (
	CodeNotAttempted = "NA"
	CodeNotSupported = "NS"
)

// Kind tags a Value.
type Kind int

const (
	Unattempted Kind = iota
	Unsupported
	Measured
)

// Value is the classified result of one probe slot.
type Value struct {
	Kind   Kind
	Millis int64
}

// NotAttempted is the value of a slot that had no target.
func NotAttempted() Value { return Value{Kind: Unattempted} }

// NotSupported is the value of a slot whose fetch failed or timed out.
func NotSupported() Value { return Value{Kind: Unsupported} }

// Latency is the value of a successful fetch. Negative input is clamped to zero.
func Latency(ms int64) Value {
	if ms < 0 {
		ms = 0
	}
	return Value{Kind: Measured, Millis: ms}
}

func (v Value) String() string {
	switch v.Kind {
	case Unsupported:
		return CodeNotSupported
	case Measured:
		return strconv.FormatInt(v.Millis, 10)
	default:
		return CodeNotAttempted
	}
}

// ParseValue is the inverse of String.
func ParseValue(s string) (Value, error) {
	switch s = strings.TrimSpace(s); s {
	case CodeNotAttempted, "":
		return NotAttempted(), nil
	case CodeNotSupported:
		return NotSupported(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms < 0 {
		return Value{}, fmt.Errorf("invalid probe value %q", s)
	}
	return Latency(ms), nil
}

// MarshalJSON encodes NA/NS as strings and latency as a number.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == Measured {
		return []byte(strconv.FormatInt(v.Millis, 10)), nil
	}
	return json.Marshal(v.String())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseValue(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Measurement is the record emitted once per measurement cycle.
type Measurement struct {
	Timestamp time.Time `json:"timestamp"`
	Direct    Value     `json:"ipv6_latency"`
	Resolved  Value     `json:"ipv6_lookup"`
}

// Vars returns the record as report key/value pairs.
func (m Measurement) Vars() map[string]string {
	return map[string]string{
		KeyLatency: m.Direct.String(),
		KeyLookup:  m.Resolved.String(),
	}
}
