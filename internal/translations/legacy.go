package translations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	legacyZeroDate     = "0000-00-00"
	legacyDateFormat   = "2006-01-02"
	legacyDateTimeFmt  = "2006-01-02T15:04:05"
	secondsPerDay      = 24 * 60 * 60
	daysPerMonthLegacy = 30
)

var legacyDateTimeFormats = []string{
	legacyDateTimeFmt,
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// LegacyDate is a date-only legacy field. "0000-00-00", "" and null all mean
// absent; absent is written back as "0000-00-00".
type LegacyDate struct {
	Time  time.Time
	Valid bool
}

func (d LegacyDate) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return json.Marshal(legacyZeroDate)
	}
	return json.Marshal(d.Time.Format(legacyDateFormat))
}

func (d *LegacyDate) UnmarshalJSON(data []byte) error {
	*d = LegacyDate{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" || s == legacyZeroDate {
		return nil
	}

	// Some legacy servers send a full timestamp for date fields
	if len(s) > len(legacyDateFormat) {
		s = s[:len(legacyDateFormat)]
	}
	t, err := time.ParseInLocation(legacyDateFormat, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid legacy date %q: %w", s, err)
	}
	*d = LegacyDate{Time: t, Valid: true}
	return nil
}

// Ptr returns the date at midnight UTC, or nil when absent
func (d LegacyDate) Ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

// NewLegacyDate converts an optional timestamp to its date part
func NewLegacyDate(t *time.Time) LegacyDate {
	if t == nil {
		return LegacyDate{}
	}
	u := t.UTC()
	return LegacyDate{Time: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

// LegacyDateTime is a naive UTC timestamp with second precision, used by the
// om_* fields. Absent is written as null.
type LegacyDateTime struct {
	Time  time.Time
	Valid bool
}

func (d LegacyDateTime) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.UTC().Format(legacyDateTimeFmt))
}

func (d *LegacyDateTime) UnmarshalJSON(data []byte) error {
	*d = LegacyDateTime{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	for _, format := range legacyDateTimeFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			*d = LegacyDateTime{Time: t.UTC().Truncate(time.Second), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("invalid legacy datetime %q", s)
}

// Ptr returns the timestamp, or nil when absent
func (d LegacyDateTime) Ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

// NewLegacyDateTime wraps an optional timestamp
func NewLegacyDateTime(t *time.Time) LegacyDateTime {
	if t == nil {
		return LegacyDateTime{}
	}
	return LegacyDateTime{Time: t.UTC().Truncate(time.Second), Valid: true}
}

// LegacyString is a legacy text field where "" means absent. Text is NFC
// normalised on read.
type LegacyString string

func (s *LegacyString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = LegacyString(norm.NFC.String(v))
	return nil
}

// Ptr returns nil for the empty string
func (s LegacyString) Ptr() *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

// NewLegacyString converts an optional string, absent becoming ""
func NewLegacyString(s *string) LegacyString {
	if s == nil {
		return ""
	}
	return LegacyString(*s)
}

// combineDateAndTime joins a legacy date with a seconds-since-midnight field
func combineDateAndTime(date LegacyDate, seconds int64) *time.Time {
	if !date.Valid {
		return nil
	}
	t := date.Time.Add(time.Duration(seconds%secondsPerDay) * time.Second)
	return &t
}

// splitDateTime is the inverse of combineDateAndTime
func splitDateTime(t *time.Time) (LegacyDate, int64) {
	if t == nil {
		return LegacyDate{}, 0
	}
	u := t.UTC()
	seconds := int64(u.Hour()*3600 + u.Minute()*60 + u.Second())
	return NewLegacyDate(&u), seconds
}

// firstOf returns the modern value when present, otherwise the derived legacy one
func firstOf(modern LegacyDateTime, derived *time.Time) *time.Time {
	if modern.Valid {
		return modern.Ptr()
	}
	return derived
}
