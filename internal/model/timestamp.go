package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxCivilSeconds is the last second that can be rendered as a civil date
// (9999-12-31 23:59:59 UTC).
const MaxCivilSeconds = 253402300799

// Timestamp errors. TimestampError wraps one of these.
var (
	// ErrTimestampMissing is returned when a record carries no timestamp at all.
	ErrTimestampMissing = errors.New("timestamp missing")

	// ErrTimestampNotNumeric is returned when a timestamp is not a decimal number.
	ErrTimestampNotNumeric = errors.New("timestamp is not numeric")

	// ErrTimestampOutOfRange is returned when a timestamp is outside
	// [0, MaxCivilSeconds].
	ErrTimestampOutOfRange = errors.New("timestamp out of range")
)

// TimestampError reports a capture time that cannot be converted.
// A missing or corrupted timestamp is never coerced to the epoch.
type TimestampError struct {
	// Value is the offending input, if the timestamp came from text.
	Value string

	// Err is one of ErrTimestampMissing, ErrTimestampNotNumeric or
	// ErrTimestampOutOfRange.
	Err error
}

// Error implements error.
func (e *TimestampError) Error() string {
	if e.Value == "" {
		return "invalid timestamp: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid timestamp %q: %v", e.Value, e.Err)
}

// Unwrap returns the underlying sentinel error.
func (e *TimestampError) Unwrap() error {
	return e.Err
}

// Timestamp is a capture time in seconds since the Unix epoch (UTC) with
// nanosecond precision.
//
// The zero value is an unset timestamp, which is distinct from a timestamp
// of exactly zero seconds (the epoch). Use IsSet to tell them apart.
type Timestamp struct {
	sec  int64
	nsec int32
	set  bool
}

// NewTimestamp returns the Timestamp for t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{sec: t.Unix(), nsec: int32(t.Nanosecond()), set: true} //nolint:gosec // Nanosecond is < 1e9
}

// UnixTimestamp returns the Timestamp for the given seconds and nanoseconds.
// nsec may be outside [0, 999999999]; it is normalized into sec.
func UnixTimestamp(sec, nsec int64) Timestamp {
	if nsec < 0 || nsec >= int64(time.Second) {
		sec += nsec / int64(time.Second)
		nsec %= int64(time.Second)
		if nsec < 0 {
			sec--
			nsec += int64(time.Second)
		}
	}
	return Timestamp{sec: sec, nsec: int32(nsec), set: true} //nolint:gosec // normalized above
}

// ParseTimestamp parses a decimal seconds-since-epoch value such as
// "1700000000.123456789" (the tshark frame.time_epoch form).
//
// Plain decimal input is parsed exactly; exponent notation is accepted via
// float conversion. Empty input, non-numeric input, NaN and infinities
// return a *TimestampError. The range is not checked here; Civil does that.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, &TimestampError{Value: s, Err: ErrTimestampMissing}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return Timestamp{}, &TimestampError{Value: s, Err: ErrTimestampOutOfRange}
		}
		return Timestamp{}, &TimestampError{Value: s, Err: ErrTimestampNotNumeric}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Timestamp{}, &TimestampError{Value: s, Err: ErrTimestampNotNumeric}
	}

	if ts, ok := parseDecimal(s); ok {
		return ts, nil
	}

	if f > math.MaxInt64/2 || f < math.MinInt64/2 {
		return Timestamp{}, &TimestampError{Value: s, Err: ErrTimestampOutOfRange}
	}
	sec, frac := math.Modf(f)
	return UnixTimestamp(int64(sec), int64(math.Round(frac*1e9))), nil
}

// parseDecimal parses [+-]digits[.digits] without going through float64.
func parseDecimal(s string) (Timestamp, bool) {
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return Timestamp{}, false
	}

	sec, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Timestamp{}, false
	}

	if len(fracPart) > 9 {
		fracPart = fracPart[:9]
	}
	var nsec int64
	if fracPart != "" {
		nsec, _ = strconv.ParseInt(fracPart+strings.Repeat("0", 9-len(fracPart)), 10, 64) //nolint:errcheck // digits only
	}

	if neg {
		return UnixTimestamp(-sec, -nsec), true
	}
	return UnixTimestamp(sec, nsec), true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsSet reports whether the timestamp carries a value.
func (t Timestamp) IsSet() bool {
	return t.set
}

// Unix returns the whole seconds and nanoseconds of the timestamp.
func (t Timestamp) Unix() (sec int64, nsec int64) {
	return t.sec, int64(t.nsec)
}

// Seconds returns the timestamp as fractional seconds since the epoch.
// It returns NaN for an unset timestamp.
func (t Timestamp) Seconds() float64 {
	if !t.set {
		return math.NaN()
	}
	return float64(t.sec) + float64(t.nsec)/1e9
}

// Civil converts the timestamp to a UTC calendar time.
// It fails with a *TimestampError when the timestamp is unset or outside
// [0, MaxCivilSeconds].
func (t Timestamp) Civil() (time.Time, error) {
	if !t.set {
		return time.Time{}, &TimestampError{Err: ErrTimestampMissing}
	}
	if t.sec < 0 || t.sec > MaxCivilSeconds {
		return time.Time{}, &TimestampError{Value: t.String(), Err: ErrTimestampOutOfRange}
	}
	return time.Unix(t.sec, int64(t.nsec)).UTC(), nil
}

// String returns the exact decimal form, or "unset".
func (t Timestamp) String() string {
	if !t.set {
		return "unset"
	}
	if t.sec < 0 && t.nsec > 0 {
		return fmt.Sprintf("-%d.%09d", -t.sec-1, int64(time.Second)-int64(t.nsec))
	}
	return fmt.Sprintf("%d.%09d", t.sec, t.nsec)
}

// MarshalJSON encodes the timestamp as a JSON number, or null when unset.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return []byte(t.String()), nil
}

// UnmarshalJSON decodes a JSON number or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*t = Timestamp{}
		return nil
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = ts
	return nil
}

// Equal reports whether t and u are both unset or denote the same instant.
func (t Timestamp) Equal(u Timestamp) bool {
	return t == u
}
