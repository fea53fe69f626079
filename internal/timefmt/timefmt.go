// Package timefmt renders gateway timestamps for Argentine users.
package timefmt

import (
	"fmt"
	"strings"
	"time"
)

// argentina is a fixed UTC-3 zone. Argentina does not observe DST.
var argentina = time.FixedZone("ART", -3*60*60)

const displayLayout = "02/01/2006 15:04:05"

// ToArgentineTime converts an RFC 3339 timestamp to "DD/MM/YYYY HH:MM:SS" in UTC-3.
func ToArgentineTime(ts string) (string, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return "", fmt.Errorf("ToArgentineTime: empty timestamp")
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "", fmt.Errorf("ToArgentineTime: parse %q: %w", ts, err)
	}

	return FormatArgentine(t), nil
}

// FormatArgentine renders t in UTC-3.
func FormatArgentine(t time.Time) string {
	return t.In(argentina).Format(displayLayout)
}
