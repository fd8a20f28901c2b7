package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // America/Los_Angeles must resolve on minimal images
)

var absoluteLayouts = []string{
	time.RFC3339,
	time.DateTime,
	time.DateOnly,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
	"2 January 2006",
	"01/02/2006",
}

// ParseDateExpr turns a date expression into an instant.
//
// Blank, "t" and "today" mean now. "t+3", "w-2", "m+1" and "y-1" shift now by
// days, weeks, months or years. Anything else must be an absolute date; a
// date without a time of day is midnight UTC. live is true when the result
// was derived from now and still carries the clock time.
func ParseDateExpr(expr string, now time.Time) (t time.Time, live bool, err error) {
	s := strings.TrimSpace(expr)
	if s == "" || strings.EqualFold(s, "t") || strings.EqualFold(s, "today") {
		return now.UTC(), true, nil
	}
	if len(s) > 2 && strings.ContainsRune("ymwtYMWT", rune(s[0])) && (s[1] == '+' || s[1] == '-') {
		n, convErr := strconv.Atoi(s[1:])
		if convErr == nil {
			now = now.UTC()
			switch strings.ToLower(s[:1]) {
			case "y":
				return now.AddDate(n, 0, 0), true, nil
			case "m":
				return now.AddDate(0, n, 0), true, nil
			case "w":
				return now.AddDate(0, 0, 7*n), true, nil
			default:
				return now.AddDate(0, 0, n), true, nil
			}
		}
	}
	for _, layout := range absoluteLayouts {
		if parsed, perr := time.Parse(layout, s); perr == nil {
			return parsed.UTC(), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognised date %q", expr)
}

// pacific is where off-schedule nest shifts are announced.
var pacific = mustLoadLocation("America/Los_Angeles")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// NestShiftTime snaps a requested rotation instant onto the game's schedule.
//
// Thursday shifts happen at 00:00 UTC; shifts on any other day happen at
// 13:00 America/Los_Angeles. A live instant (derived from the clock) is always
// snapped. An explicit instant is snapped only when it sits at midnight UTC on
// a day other than Thursday, so explicit times of day are kept as given.
func NestShiftTime(t time.Time, live bool) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if live {
		if t.Weekday() == time.Thursday {
			return midnight
		}
		return pacificAfternoon(y, m, d)
	}
	if t.Equal(midnight) && t.Weekday() != time.Thursday {
		return pacificAfternoon(y, m, d)
	}
	return t
}

func pacificAfternoon(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 13, 0, 0, 0, pacific).UTC()
}

// IsRotationNumber reports whether s is a short numeric string naming a
// rotation directly rather than a date.
func IsRotationNumber(s string) (uint, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) >= 4 {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}
