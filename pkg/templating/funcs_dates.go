package templating

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/dynrender/pkg/ctxdata"
	"github.com/dustin/go-humanize"
	"github.com/goodsign/monday"
	"golang.org/x/text/language"
)

// Styles accepted by the date helpers. Any other style string is used as a
// Go time layout.
const (
	styleShort  = "short"
	styleMedium = "medium"
	styleLong   = "long"
	styleFull   = "full"
)

// dateLayouts holds the Go layouts for one language. Names in the layouts are
// written in English and translated by monday.
type dateLayouts struct {
	date     map[string]string
	time     map[string]string
	sepShort string // between date and time in the short and medium styles
	sepLong  string
}

var layoutsByLanguage = map[string]dateLayouts{
	"en": {
		date: map[string]string{
			styleShort:  "1/2/06",
			styleMedium: "Jan 2, 2006",
			styleLong:   "January 2, 2006",
			styleFull:   "Monday, January 2, 2006",
		},
		time: map[string]string{
			styleShort:  "3:04 PM",
			styleMedium: "3:04:05 PM",
			styleLong:   "3:04:05 PM MST",
			styleFull:   "3:04:05 PM MST",
		},
		sepShort: ", ",
		sepLong:  " at ",
	},
	"fr": {
		date: map[string]string{
			styleShort:  "02/01/2006",
			styleMedium: "2 Jan 2006",
			styleLong:   "2 January 2006",
			styleFull:   "Monday 2 January 2006",
		},
		time:     twentyFourHour,
		sepShort: " ",
		sepLong:  " à ",
	},
	"de": {
		date: map[string]string{
			styleShort:  "02.01.06",
			styleMedium: "02.01.2006",
			styleLong:   "2. January 2006",
			styleFull:   "Monday, 2. January 2006",
		},
		time:     twentyFourHour,
		sepShort: ", ",
		sepLong:  " um ",
	},
}

var twentyFourHour = map[string]string{
	styleShort:  "15:04",
	styleMedium: "15:04:05",
	styleLong:   "15:04:05 MST",
	styleFull:   "15:04:05 MST",
}

// defaultLayouts serves every language without its own entry.
var defaultLayouts = dateLayouts{
	date: map[string]string{
		styleShort:  "02/01/2006",
		styleMedium: "2 Jan 2006",
		styleLong:   "2 January 2006",
		styleFull:   "Monday 2 January 2006",
	},
	time:     twentyFourHour,
	sepShort: ", ",
	sepLong:  ", ",
}

// dateLocale is a monday locale together with the layouts of its language.
type dateLocale struct {
	locale  monday.Locale
	layouts dateLayouts
}

// newDateLocale maps a language tag to the closest locale monday knows:
// the exact language_REGION, then language_LANGUAGE ("fr_FR", "de_DE"), then
// any region of the language. Unknown languages fall back to en_US.
func newDateLocale(tag language.Tag) dateLocale {
	base, _ := tag.Base()
	region, _ := tag.Region()
	lang := base.String()

	known := monday.ListLocales()
	candidates := []monday.Locale{
		monday.Locale(lang + "_" + region.String()),
		monday.Locale(lang + "_" + strings.ToUpper(lang)),
	}
	var loc monday.Locale = monday.LocaleEnUS
	found := false
	for _, c := range candidates {
		if slices.Contains(known, c) {
			loc, found = c, true
			break
		}
	}
	if !found {
		sorted := slices.Clone(known)
		slices.Sort(sorted)
		for _, c := range sorted {
			if strings.HasPrefix(string(c), lang+"_") {
				loc, found = c, true
				break
			}
		}
	}
	if !found {
		lang = "en"
	}

	layouts, ok := layoutsByLanguage[lang]
	if !ok {
		layouts = defaultLayouts
	}
	return dateLocale{locale: loc, layouts: layouts}
}

func (d dateLocale) format(t time.Time, layout string) string {
	return monday.Format(t, layout, d.locale)
}

func (d dateLocale) dateString(t time.Time, style string) string {
	if layout, ok := d.layouts.date[style]; ok {
		return d.format(t, layout)
	}
	return d.format(t, style)
}

func (d dateLocale) timeString(t time.Time, style string) string {
	if layout, ok := d.layouts.time[style]; ok {
		return d.format(t, layout)
	}
	return d.format(t, style)
}

func (d dateLocale) datetimeString(t time.Time, style string) string {
	switch style {
	case styleShort, styleMedium:
		sep := d.layouts.sepShort
		if style == styleMedium {
			sep = ", "
		}
		return d.dateString(t, style) + sep + d.timeString(t, style)
	case styleLong, styleFull:
		return d.dateString(t, style) + d.layouts.sepLong + d.timeString(t, style)
	}
	return d.format(t, style)
}

var frMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "maintenant", DivBy: time.Second},
	{D: 2 * time.Second, Format: "1 seconde", DivBy: 1},
	{D: time.Minute, Format: "%d secondes", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute", DivBy: 1},
	{D: time.Hour, Format: "%d minutes", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 heure", DivBy: 1},
	{D: humanize.Day, Format: "%d heures", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 jour", DivBy: 1},
	{D: humanize.Week, Format: "%d jours", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "1 semaine", DivBy: 1},
	{D: humanize.Month, Format: "%d semaines", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "1 mois", DivBy: 1},
	{D: humanize.Year, Format: "%d mois", DivBy: humanize.Month},
	{D: 18 * humanize.Month, Format: "1 an", DivBy: 1},
	{D: 2 * humanize.Year, Format: "2 ans", DivBy: 1},
	{D: humanize.LongTime, Format: "%d ans", DivBy: humanize.Year},
	{D: math.MaxInt64, Format: "très longtemps", DivBy: 1},
}

var enMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "now", DivBy: time.Second},
	{D: 2 * time.Second, Format: "1 second", DivBy: 1},
	{D: time.Minute, Format: "%d seconds", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute", DivBy: 1},
	{D: time.Hour, Format: "%d minutes", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour", DivBy: 1},
	{D: humanize.Day, Format: "%d hours", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day", DivBy: 1},
	{D: humanize.Week, Format: "%d days", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "1 week", DivBy: 1},
	{D: humanize.Month, Format: "%d weeks", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "1 month", DivBy: 1},
	{D: humanize.Year, Format: "%d months", DivBy: humanize.Month},
	{D: 18 * humanize.Month, Format: "1 year", DivBy: 1},
	{D: 2 * humanize.Year, Format: "2 years", DivBy: 1},
	{D: humanize.LongTime, Format: "%d years", DivBy: humanize.Year},
	{D: math.MaxInt64, Format: "a long while", DivBy: 1},
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case ctxdata.Date:
		return t.Time, nil
	case string:
		for _, layout := range []string{time.DateOnly, time.DateTime, time.RFC3339} {
			if parsed, err := time.ParseInLocation(layout, strings.TrimSpace(t), time.Local); err == nil {
				return parsed, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("cannot format %v (%T) as a date", v, v)
}

// deltaMagnitudes picks the humanize units for a language. Durations are
// spelled in French or English.
func deltaMagnitudes(tag language.Tag) []humanize.RelTimeMagnitude {
	if base, _ := tag.Base(); base.String() == "fr" {
		return frMagnitudes
	}
	return enMagnitudes
}

// styleAndLocale reads the optional (style, locale) helper arguments.
func (tm *TemplateManager) styleAndLocale(args []string) (string, dateLocale) {
	style := styleMedium
	if len(args) > 0 && args[0] != "" {
		style = args[0]
	}
	return style, newDateLocale(tm.localeTag(args[min(1, len(args)):]...))
}

// formatDate formats a date: {{formatDate .published}},
// {{formatDate .published "long" "en"}}.
func (tm *TemplateManager) formatDate(v any, args ...string) (string, error) {
	t, err := toTime(v)
	if err != nil {
		return "", err
	}
	style, loc := tm.styleAndLocale(args)
	return loc.dateString(t, style), nil
}

// formatDatetime formats a date and time of day.
func (tm *TemplateManager) formatDatetime(v any, args ...string) (string, error) {
	t, err := toTime(v)
	if err != nil {
		return "", err
	}
	style, loc := tm.styleAndLocale(args)
	return loc.datetimeString(t, style), nil
}

// formatTime formats the time of day.
func (tm *TemplateManager) formatTime(v any, args ...string) (string, error) {
	t, err := toTime(v)
	if err != nil {
		return "", err
	}
	style, loc := tm.styleAndLocale(args)
	return loc.timeString(t, style), nil
}

// formatTimedelta renders a duration in words, rounded to its largest unit:
// "3 jours", "2 hours". Numbers are taken as seconds.
func (tm *TemplateManager) formatTimedelta(v any, lcl ...string) (string, error) {
	var d time.Duration
	switch t := v.(type) {
	case time.Duration:
		d = t
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(t))
		if err != nil {
			secs, serr := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if serr != nil {
				return "", fmt.Errorf("cannot format %q as a duration: %w", t, err)
			}
			parsed = time.Duration(secs * float64(time.Second))
		}
		d = parsed
	case int, int64, float64:
		d = time.Duration(toNumber(t).f * float64(time.Second))
	default:
		return "", fmt.Errorf("cannot format %v (%T) as a duration", v, v)
	}

	mags := deltaMagnitudes(tm.localeTag(lcl...))
	var base time.Time
	return strings.TrimSpace(humanize.CustomRelTime(base, base.Add(d), "", "", mags)), nil
}
