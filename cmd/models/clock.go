package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day stored as minutes after midnight.
type ClockTime int

var clockLayouts = []string{"15:04", "15:04:05", "15:04:05.999999999"}

// EndOfDay is midnight closing a day, written 24:00 the way Postgres does.
const EndOfDay = ClockTime(24 * 60)

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "24:00"); ok && isZeroSeconds(rest) {
		return EndOfDay, nil
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClockTime(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
}

func isZeroSeconds(rest string) bool {
	switch {
	case rest == "":
		return true
	case strings.HasPrefix(rest, ":00"):
		frac := strings.TrimPrefix(rest, ":00")
		return frac == "" || (strings.HasPrefix(frac, ".") && strings.Trim(frac[1:], "0") == "")
	}
	return false
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On places the clock time on the calendar day of date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

func (ClockTime) GormDataType() string {
	return "time"
}

func (c ClockTime) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", c.Hour(), c.Minute()), nil
}

func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseClockTime(v)
		if err != nil {
			return err
		}
		*c = parsed
	case []byte:
		parsed, err := ParseClockTime(string(v))
		if err != nil {
			return err
		}
		*c = parsed
	case time.Time:
		*c = NewClockTime(v.Hour(), v.Minute())
	case nil:
		*c = 0
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", src)
	}
	return nil
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DateOf returns the calendar day of t as midnight UTC so dates compare by value.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
