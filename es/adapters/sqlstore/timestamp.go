package sqlstore

import (
	"time"

	"github.com/juju/errors"
)

// TextTimeFormat is how timestamps are stored by dialects without a native
// timestamp type.
const TextTimeFormat = "2006-01-02 15:04:05.999999"

var textTimeFormats = []string{
	TextTimeFormat,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999Z",
	time.RFC3339Nano,
}

// timestamp scans native timestamps as well as their text encodings.
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return errors.NotSupportedf("timestamp of type %T", src)
}

func (t *timestamp) parse(s string) error {
	for _, format := range textTimeFormats {
		if parsed, err := time.Parse(format, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return errors.NotValidf("timestamp %q", s)
}
