package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UTCTime is a timestamp that is always written and read back in UTC.
type UTCTime struct {
	time.Time
}

var utcLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func NewUTCTime(t time.Time) UTCTime {
	return UTCTime{Time: t.UTC()}
}

func (c UTCTime) Value() (driver.Value, error) {
	return c.Time.UTC(), nil
}

func (c *UTCTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = UTCTime{}
	case time.Time:
		*c = NewUTCTime(v)
	case int64:
		*c = NewUTCTime(time.Unix(v, 0))
	case []byte:
		return c.parse(string(v))
	case string:
		return c.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}

	return nil
}

func (c *UTCTime) parse(s string) error {
	for _, layout := range utcLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*c = NewUTCTime(t)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
