package ctxdata

import (
	"fmt"
	"testing"
	"time"
)

func TestParseValue(t *testing.T) {
	fixed := time.Date(2024, time.March, 9, 14, 30, 5, 0, time.Local)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	testCases := []struct {
		in   string
		want any
	}{
		{"none", nil},
		{"None", nil},
		{" NONE ", nil},
		{"false", false},
		{"FALSE", false},
		{"True", true},
		{"42", 42},
		{" 7 ", 7},
		{"3.14", 3.14},
		{"0.5", 0.5},
		{"-3", "-3"},
		{".5", ".5"},
		{"1.", "1."},
		{"99999999999999999999999", "99999999999999999999999"},
		{"hello", "hello"},
		{"  padded  ", "  padded  "},
		{"nonesuch", "nonesuch"},
		{"Date(2023,1,15)", NewDate(2023, time.January, 15)},
		{"Date(2023,02,30)", "Date(2023,02,30)"},
		{"Date(2023,13,1)", "Date(2023,13,1)"},
		{"Date(now)", NewDate(2024, time.March, 9)},
		{"date(now)", "date(now)"},
		{"Datetime(now)", fixed},
		{"Datetime(2023,6,1,8,5)", time.Date(2023, time.June, 1, 8, 5, 0, 0, time.Local)},
		{"Datetime(2023,6,1,23,59,58)", time.Date(2023, time.June, 1, 23, 59, 58, 0, time.Local)},
		{"Datetime(2023,6,1,24,0)", "Datetime(2023,6,1,24,0)"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got := ParseValue(tc.in)
			switch want := tc.want.(type) {
			case time.Time:
				tm, ok := got.(time.Time)
				if !ok || !tm.Equal(want) {
					t.Errorf("ParseValue(%q) = %#v, want %v", tc.in, got, want)
				}
			case Date:
				d, ok := got.(Date)
				if !ok || !d.Equal(want.Time) {
					t.Errorf("ParseValue(%q) = %#v, want %v", tc.in, got, want)
				}
			default:
				if got != tc.want {
					t.Errorf("ParseValue(%q) = %#v, want %#v", tc.in, got, tc.want)
				}
			}
		})
	}
}

func TestParseValueReparse(t *testing.T) {
	testCases := []struct {
		in   string
		want any
	}{
		{"12", 12},
		{"1.25", 1.25},
		{"TRUE", true},
		{"false", false},
		{"plain text", "plain text"},
	}
	for _, tc := range testCases {
		first := ParseValue(tc.in)
		if first != tc.want {
			t.Fatalf("ParseValue(%q) = %#v, want %#v", tc.in, first, tc.want)
		}
		printed := fmt.Sprint(first)
		if second := ParseValue(printed); second != first {
			t.Errorf("ParseValue(%q) = %#v, want %#v from the first pass over %q", printed, second, first, tc.in)
		}
	}
}

func TestDateString(t *testing.T) {
	d := NewDate(2021, time.December, 3)
	if got := d.String(); got != "2021-12-03" {
		t.Errorf("String() = %q, want %q", got, "2021-12-03")
	}
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(b) != `"2021-12-03"` {
		t.Errorf("MarshalJSON() = %s, want %q", b, "2021-12-03")
	}
}
