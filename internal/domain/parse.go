package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyTimes  = errors.New("no reminder times")
	ErrInvalidTime = errors.New("invalid time")
	ErrInvalidTZ   = errors.New("invalid timezone")
)

// ParseHHMM parses "HH:MM" (or "H:MM") into minutes since midnight.
func ParseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrInvalidTime, s)
	}
	if len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrInvalidTime, s)
	}
	return h*60 + m, nil
}

// NormalizeHHMM returns s in canonical zero-padded "HH:MM" form.
func NormalizeHHMM(s string) (string, error) {
	mins, err := ParseHHMM(s)
	if err != nil {
		return "", err
	}
	return FormatMinutes(mins), nil
}

// ParseTimesList parses a comma or space separated list such as "8:00, 20:30"
// into sorted, de-duplicated canonical times.
func ParseTimesList(s string) ([]string, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, ErrEmptyTimes
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		t, err := NormalizeHHMM(f)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// ValidateTZ checks that tz names an IANA location and returns its name.
func ValidateTZ(tz string) (string, error) {
	loc, err := loadTZ(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// LoadLocationOrUTC resolves tz, falling back to UTC for empty or unknown
// names. "Local" counts as unknown.
func LoadLocationOrUTC(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return time.UTC, nil
	}
	loc, err := loadTZ(tz)
	if err != nil {
		return time.UTC, err
	}
	return loc, nil
}

// loadTZ rejects "" and "Local": time.LoadLocation maps both to a zone of
// the host rather than of the user.
func loadTZ(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || tz == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTZ, tz)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTZ, err)
	}
	return loc, nil
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	h := mins / 60
	m := mins % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}
