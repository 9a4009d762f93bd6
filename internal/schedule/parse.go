package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parse errors are user-correctable and reported verbatim.
var (
	ErrBadTime = errors.New(`bad time, use formats like "14:30", "9", "2:30pm"`)
	ErrBadDay  = errors.New("bad day, use Mon/Tue/Wed/Thu/Fri/Sat/Sun")
)

// Slot is one recurring weekly trigger point.
type Slot struct {
	Day    time.Weekday
	Hour   int
	Minute int
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %02d:%02d", DayAbbr(s.Day), s.Hour, s.Minute)
}

var dayByPrefix = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// DayAbbr returns the canonical capitalized 3-letter form ("Mon".."Sun").
func DayAbbr(d time.Weekday) string {
	return d.String()[:3]
}

// ParseDay matches a case-insensitive 3-letter prefix against Mon..Sun.
func ParseDay(tok string) (time.Weekday, error) {
	t := strings.ToLower(strings.TrimSpace(tok))
	if len(t) < 3 {
		return 0, ErrBadDay
	}
	d, ok := dayByPrefix[t[:3]]
	if !ok {
		return 0, ErrBadDay
	}
	return d, nil
}

var timeRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*([ap]m?)?$`)

// ParseSlot converts user-supplied day/time tokens into a canonical slot.
//
// Time grammar: H or H:MM, optionally suffixed a/am/p/pm (case-insensitive).
// With a suffix the hour is 1-12 clock time. Without a suffix and without a
// day token, an hour below 12 is bumped to the afternoon when "now" is
// already past noon ("schedule for later today" shorthand); with an
// explicit day token a bare hour is literal 24-hour time.
//
// An empty day token defaults to the weekday of "now".
func ParseSlot(dayTok, timeTok string, now time.Time) (Slot, error) {
	day := now.Weekday()
	explicitDay := false
	if strings.TrimSpace(dayTok) != "" {
		d, err := ParseDay(dayTok)
		if err != nil {
			return Slot{}, err
		}
		day = d
		explicitDay = true
	}

	m := timeRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(timeTok)))
	if m == nil {
		return Slot{}, ErrBadTime
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return Slot{}, ErrBadTime
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil {
			return Slot{}, ErrBadTime
		}
	}
	if minute < 0 || minute > 59 {
		return Slot{}, ErrBadTime
	}

	switch suffix := m[3]; {
	case suffix == "":
		if hour < 0 || hour > 23 {
			return Slot{}, ErrBadTime
		}
		// Same-day shorthand: "!schedule 2:30" typed in the afternoon
		// means 14:30 today.
		if !explicitDay && hour < 12 && now.Hour() >= 12 {
			hour += 12
		}
	case suffix[0] == 'a':
		if hour < 1 || hour > 12 {
			return Slot{}, ErrBadTime
		}
		if hour == 12 {
			hour = 0
		}
	default: // pm
		if hour < 1 || hour > 12 {
			return Slot{}, ErrBadTime
		}
		if hour != 12 {
			hour += 12
		}
	}

	return Slot{Day: day, Hour: hour, Minute: minute}, nil
}
