package ctxdata

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	noneRe        = regexp.MustCompile(`(?i)^none$`)
	falseRe       = regexp.MustCompile(`(?i)^false$`)
	trueRe        = regexp.MustCompile(`(?i)^true$`)
	intRe         = regexp.MustCompile(`^\d+$`)
	floatRe       = regexp.MustCompile(`^\d+\.\d+$`)
	dateNowRe     = regexp.MustCompile(`^Date\(now\)$`)
	dateRe        = regexp.MustCompile(`^Date\((\d{4}),([01]?\d),([0-3]?\d)\)$`)
	datetimeNowRe = regexp.MustCompile(`^Datetime\(now\)$`)
	datetimeRe    = regexp.MustCompile(`^Datetime\((\d{4}),([01]?\d),([0-3]?\d),([0-2]?\d),([0-5]?\d)(?:,([0-5]?\d))?\)$`)
)

// now is swapped out by tests.
var now = time.Now

// Date is a calendar day. It renders as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the Date for the given day in the local time zone.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.Local)}
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// MarshalJSON encodes the date without a time component.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

// ParseValue coerces a scalar read from a data file into a typed value.
//
// The trimmed input is matched, first match wins, against: none (nil),
// false/true (bool), digits (int), digits.digits (float64), Date(Y,M,D) or
// Date(now) (Date), Datetime(Y,M,D,H,Min[,Sec]) or Datetime(now)
// (time.Time). Anything else, including out-of-range numbers and impossible
// dates, is returned unchanged.
func ParseValue(value string) any {
	s := strings.TrimSpace(value)

	switch {
	case noneRe.MatchString(s):
		return nil
	case falseRe.MatchString(s):
		return false
	case trueRe.MatchString(s):
		return true
	}

	if intRe.MatchString(s) {
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
		return value
	}
	if floatRe.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return value
	}

	if dateNowRe.MatchString(s) {
		t := now()
		return NewDate(t.Year(), t.Month(), t.Day())
	}
	if m := dateRe.FindStringSubmatch(s); m != nil {
		if t, ok := makeTime(m[1:4]); ok {
			return Date{t}
		}
		return value
	}

	if datetimeNowRe.MatchString(s) {
		return now()
	}
	if m := datetimeRe.FindStringSubmatch(s); m != nil {
		if t, ok := makeTime(m[1:]); ok {
			return t
		}
		return value
	}

	return value
}

// makeTime builds a local time from year, month, day[, hour, minute[, second]]
// digit groups. It reports false when a component is out of range, since
// time.Date would silently normalise it.
func makeTime(parts []string) (time.Time, bool) {
	var n [6]int
	limits := [6]int{9999, 12, 31, 23, 59, 59}
	for i, p := range parts {
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil || v > limits[i] {
			return time.Time{}, false
		}
		n[i] = v
	}
	if n[1] < 1 || n[2] < 1 {
		return time.Time{}, false
	}

	t := time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, time.Local)
	if t.Month() != time.Month(n[1]) || t.Day() != n[2] {
		return time.Time{}, false
	}
	return t, true
}
