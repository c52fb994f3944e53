package runlog

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const sqliteTimeLayout = "2006-01-02 15:04:05.000000-07:00"

// layouts sqlite may hand back for TIMESTAMP columns stored as text
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// timestamp scans TIMESTAMP columns regardless of how the driver represents
// them. Postgres yields time.Time; sqlite may yield text.
type timestamp struct {
	Time  time.Time
	Valid bool
}

func (t *timestamp) Scan(value any) error {
	t.Time, t.Valid = time.Time{}, false

	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		t.Time = v
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case int64:
		t.Time = time.Unix(0, v)
	default:
		return errors.Errorf("cannot scan %T into timestamp", value)
	}

	t.Valid = true
	return nil
}

func (t *timestamp) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed, true
			return nil
		}
	}

	if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time, t.Valid = time.Unix(0, ns), true
		return nil
	}

	return errors.Errorf("unrecognized timestamp: %q", s)
}
