package models

import (
	"fmt"
	"regexp"
	"time"
)

const idTimestampLayout = "20060102150405"

var idPattern = regexp.MustCompile(`^(\d{14})(?:_([A-Za-z0-9_.-]+))?$`)

// ParseID validates a migration id and returns its timestamp prefix.
// Ids are a 14 digit UTC timestamp optionally followed by "_label".
func ParseID(id string) (time.Time, error) {
	match := idPattern.FindStringSubmatch(id)
	if match == nil {
		return time.Time{}, fmt.Errorf("invalid migration id %q: want YYYYMMDDHHMMSS[_label]", id)
	}

	ts, err := time.Parse(idTimestampLayout, match[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid migration id %q: %w", id, err)
	}

	return ts, nil
}
