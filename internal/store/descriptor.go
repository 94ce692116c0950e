package store

import (
	"fmt"
	"time"
)

// Descriptor tells a Repository how an entity maps onto its table.
type Descriptor[T any] struct {
	// Entity names the type in logs and errors.
	Entity string
	Table  string
	// Key is the surrogate key column. It is generated by the store and never written.
	Key string
	// Columns lists every column in the order Fields returns scan targets.
	Columns []string
	// Fields returns pointers into t, one per column.
	Fields func(t *T) []any
	// Touch is a timestamp column set on every update. Optional.
	Touch string
}

func (d Descriptor[T]) validate() error {
	if d.Table == "" || d.Key == "" || len(d.Columns) == 0 || d.Fields == nil {
		return fmt.Errorf("descriptor for %q is incomplete", d.Entity)
	}
	var t T
	if n := len(d.Fields(&t)); n != len(d.Columns) {
		return fmt.Errorf("descriptor for %q has %d columns but %d fields", d.Entity, len(d.Columns), n)
	}
	return nil
}

// timestampLayouts covers what the drivers hand back for timestamp columns:
// pgx returns time.Time, SQLite may return text in any of these layouts.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

type timestamp struct {
	dst *time.Time
}

// Timestamp wraps a time field so it scans from any supported driver.
func Timestamp(dst *time.Time) any {
	return timestamp{dst: dst}
}

func (t timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t.dst = time.Time{}
		return nil
	case time.Time:
		*t.dst = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("scan timestamp: unsupported type %T", src)
}

func (t timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t.dst = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: unrecognised value %q", s)
}
