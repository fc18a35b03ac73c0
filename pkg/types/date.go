package types

import (
	"fmt"
	"time"
)

// DateLayout is the text form of a Date
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day, pinned to UTC midnight.
// It marshals as "YYYY-MM-DD" in JSON and YAML.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its parts
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses "YYYY-MM-DD"
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals; it panics on bad input
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns the underlying UTC midnight
func (d Date) Time() time.Time { return d.t }

// IsZero reports whether d is unset
func (d Date) IsZero() bool { return d.t.IsZero() }

// String formats d as "YYYY-MM-DD"
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// AddDays returns d shifted by n calendar days
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Weekday returns the day of week
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

// IsWeekday reports Monday through Friday
func (d Date) IsWeekday() bool {
	wd := d.t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Before reports whether d is strictly earlier than o
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// After reports whether d is strictly later than o
func (d Date) After(o Date) bool { return d.t.After(o.t) }

// Equal reports whether d and o are the same day
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
