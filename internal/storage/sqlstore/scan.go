package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// sqliteTimeFormats are the layouts mattn/go-sqlite3 writes and accepts.
// Values read from view expressions arrive as text instead of time.Time.
var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

// nullTime scans DATETIME/TIMESTAMPTZ columns and text-typed aggregates alike.
type nullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner
func (n *nullTime) Scan(value any) error {
	n.Time, n.Valid = time.Time{}, false
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into time", value)
	}
}

func (n *nullTime) parse(s string) error {
	if s == "" {
		return nil
	}
	for _, layout := range sqliteTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// Value implements driver.Valuer
func (n nullTime) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Time, nil
}

// ptr returns the time as a pointer, nil when NULL.
func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// timeArg normalizes a timestamp for storage. Everything is written in UTC so
// lexical comparison of SQLite text timestamps matches chronological order.
func timeArg(t time.Time) time.Time {
	return t.UTC()
}

// timePtrArg is timeArg for nullable columns.
func timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// toJSON marshals v for a JSON/TEXT column.
func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// fromJSON unmarshals a JSON/TEXT column into v. Empty columns leave v untouched.
func fromJSON(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
