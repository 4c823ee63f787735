package service

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone suffixes must resolve without a system zoneinfo
)

// localLayouts are tried when the timestamp carries no offset.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses message timestamps such as
// "2022-07-31T23:28:37Z[UTC]" and returns them in UTC.
//
// The bracketed zone suffix is optional. A suffix other than UTC is loaded
// with time.LoadLocation and used to interpret timestamps that carry no
// offset of their own.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := time.UTC

	if i := strings.IndexByte(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") {
			return time.Time{}, fmt.Errorf("timestamp %q: unterminated zone suffix", s)
		}
		zone := s[i+1 : len(s)-1]
		s = s[:i]
		if zone != "" && zone != "UTC" {
			l, err := time.LoadLocation(zone)
			if err != nil {
				return time.Time{}, fmt.Errorf("timestamp zone %q: %w", zone, err)
			}
			loc = l
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q: expected YYYY-MM-DDTHH:MM:SSZ", s)
}
