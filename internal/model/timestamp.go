package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is fixed width so that lexicographic order equals
// chronological order in every engine.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a UTC instant stored as a fixed-width ISO-8601 string.
type Timestamp struct {
	time.Time
}

// Now returns the current time truncated to millisecond precision.
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// NewTimestamp converts t to UTC at millisecond precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// ParseTimestamp parses the stored form, also accepting any RFC 3339 value.
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return Timestamp{Time: t.UTC()}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return NewTimestamp(t), nil
}

// String returns the stored form.
func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

// Ptr returns a pointer to a copy of t.
func (t Timestamp) Ptr() *Timestamp {
	return &t
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Timestamp{}
		return nil
	case string:
		parsed, err := ParseTimestamp(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		parsed, err := ParseTimestamp(string(v))
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case time.Time:
		*t = NewTimestamp(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

// MarshalJSON renders the stored form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the stored form or RFC 3339.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
