package show

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp parses a cue offset. Accepted forms:
//
//	12.5           plain seconds
//	1m2.5s, 250ms  Go durations
//	01:02.500      MM:SS(.mmm)
//	1:01:02.5      HH:MM:SS(.mmm)
func ParseTimestamp(ts string) (time.Duration, error) {
	ts = strings.TrimSpace(strings.ReplaceAll(ts, "\uFEFF", ""))
	if ts == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	if !strings.Contains(ts, ":") {
		if sec, err := strconv.ParseFloat(ts, 64); err == nil {
			return time.Duration(sec * float64(time.Second)).Round(time.Microsecond), nil
		}
		if d, err := time.ParseDuration(ts); err == nil {
			return d, nil
		}
		return 0, fmt.Errorf("bad time %q; use seconds, a duration like 1.5s, or MM:SS.mmm", ts)
	}

	negative := strings.HasPrefix(ts, "-")
	ts = strings.TrimPrefix(ts, "-")

	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad time %q; use MM:SS.mmm or HH:MM:SS.mmm", ts)
	}

	var h, m int64
	var err error
	secPart := parts[len(parts)-1]
	if len(parts) == 3 {
		if h, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0, fmt.Errorf("bad hours in %q", ts)
		}
	}
	if m, err = strconv.ParseInt(parts[len(parts)-2], 10, 64); err != nil {
		return 0, fmt.Errorf("bad minutes in %q", ts)
	}
	sec, err := strconv.ParseFloat(secPart, 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("bad seconds in %q", ts)
	}
	if m < 0 || (len(parts) == 3 && m >= 60) || h < 0 {
		return 0, fmt.Errorf("bad time %q", ts)
	}

	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)).Round(time.Microsecond)
	if negative {
		d = -d
	}
	return d, nil
}

// FormatTimestamp renders d as MM:SS.mmm, with an hour field when needed.
func FormatTimestamp(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	frac := ms % 1000
	if h > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d.%03d", sign, h, m, s, frac)
	}
	return fmt.Sprintf("%s%02d:%02d.%03d", sign, m, s, frac)
}
