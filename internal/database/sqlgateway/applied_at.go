package sqlgateway

import (
	"time"

	"github.com/pkg/errors"
)

// appliedAt scans the timestamp column whichever way the driver returns it
type appliedAt time.Time

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func (a *appliedAt) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = appliedAt(time.Time{})
		return nil
	case time.Time:
		*a = appliedAt(v)
		return nil
	case []byte:
		return a.parse(string(v))
	case string:
		return a.parse(v)
	case int64:
		*a = appliedAt(time.Unix(v, 0).UTC())
		return nil
	default:
		return errors.Errorf("unsupported applied at value %T", src)
	}
}

func (a *appliedAt) parse(s string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*a = appliedAt(t)
			return nil
		}
	}
	return errors.Errorf("could not parse applied at value [%s]", s)
}
