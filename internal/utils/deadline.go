package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

var Helsinki = mustLocation("Europe/Helsinki")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

const timePattern = `(?:\s+(?:klo\.?\s*)?(\d{1,2})(?:[:.](\d{1,2}))?)?(?:\s|$)`

type datePattern struct {
	re               *regexp.Regexp
	day, month, year int
	implicitYear     bool
}

var datePatterns = []datePattern{
	{re: regexp.MustCompile(`(?:^|\s)(\d{1,2})\.(\d{1,2})\.(\d{4})` + timePattern), day: 1, month: 2, year: 3},
	{re: regexp.MustCompile(`(?:^|\s)(\d{1,2})-(\d{1,2})-(\d{4})` + timePattern), day: 1, month: 2, year: 3},
	{re: regexp.MustCompile(`(?:^|\s)(\d{4})-(\d{1,2})-(\d{1,2})` + timePattern), day: 3, month: 2, year: 1},
	{re: regexp.MustCompile(`(?:^|\s)(\d{1,2})\.(\d{1,2})\.` + timePattern), day: 1, month: 2, implicitYear: true},
}

var weekPattern = regexp.MustCompile(`vko (\d+)`)

// SearchDeadline looks for a Finnish style date, with an optional time,
// in free text. "vko N" resolves to Friday noon of ISO week N. Dates
// without a year are placed in the year of now.
func SearchDeadline(text string, now time.Time) (time.Time, bool) {
	text = strings.ReplaceAll(text, "*", "")
	thisYear := now.In(Helsinki).Year()

	for _, pattern := range datePatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(text, -1) {
			year := thisYear
			if !pattern.implicitYear {
				year, _ = strconv.Atoi(match[pattern.year])
			}
			day, _ := strconv.Atoi(match[pattern.day])
			month, _ := strconv.Atoi(match[pattern.month])

			timeAt := len(match) - 2
			hour, minute := 0, 0
			if match[timeAt] != "" {
				hour, _ = strconv.Atoi(match[timeAt])
			}
			if match[timeAt+1] != "" {
				minute, _ = strconv.Atoi(match[timeAt+1])
			}

			if t, ok := validDate(year, month, day, hour, minute); ok {
				return t, true
			}
		}
	}

	if match := weekPattern.FindStringSubmatch(text); match != nil {
		week, err := strconv.Atoi(match[1])
		if err == nil && week >= 1 && week <= 53 {
			return isoWeekFriday(thisYear, week), true
		}
	}

	return time.Time{}, false
}

func validDate(year, month, day, hour, minute int) (time.Time, bool) {
	if month < 1 || month > 12 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, Helsinki)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func isoWeekFriday(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 12, 0, 0, 0, Helsinki)
	offset := int(jan4.Weekday()+6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7+4)
}
