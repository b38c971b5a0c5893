package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParsedSchedule is a schedule phrase translated to cron terms.
type ParsedSchedule struct {
	Schedule string
	Type     string
}

var (
	phraseEveryN    = regexp.MustCompile(`^every\s+(\d+)\s+(second|sec|minute|min|hour|day)s?$`)
	phraseEveryUnit = regexp.MustCompile(`^every\s+(second|minute|hour|day)$`)
	phraseDailyAt   = regexp.MustCompile(`^(?:daily|every\s+day)\s+at\s+(.+)$`)
	phraseWeeklyOn  = regexp.MustCompile(`^(?:weekly\s+on|every)\s+(\w+?)s?(?:\s+at\s+(.+))?$`)
	phraseIn        = regexp.MustCompile(`^in\s+(\d+)\s+(second|sec|minute|min|hour)s?$`)
)

var unitSuffix = map[string]string{
	"second": "s", "sec": "s",
	"minute": "m", "min": "m",
	"hour": "h",
	"day":  "d",
}

var weekdays = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

// ParseNaturalLanguage translates phrases such as "every 15 minutes",
// "hourly", "daily at 9am", "weekly on friday at 17:30" or "in 10 minutes".
// It reports false when the input is not one of them, in which case the
// input is used as a cron expression as is.
func ParseNaturalLanguage(input string) (ParsedSchedule, bool) {
	s := strings.ToLower(strings.Join(strings.Fields(input), " "))

	switch s {
	case "":
		return ParsedSchedule{}, false
	case "hourly":
		return ParsedSchedule{"@every 1h", TypeEvery}, true
	case "daily":
		return ParsedSchedule{"0 0 * * *", TypeCron}, true
	}

	if m := phraseEveryN.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n <= 0 {
			return ParsedSchedule{}, false
		}
		return ParsedSchedule{"@every " + duration(n, unitSuffix[m[2]]), TypeEvery}, true
	}
	if m := phraseEveryUnit.FindStringSubmatch(s); m != nil {
		return ParsedSchedule{"@every " + duration(1, unitSuffix[m[1]]), TypeEvery}, true
	}
	if m := phraseDailyAt.FindStringSubmatch(s); m != nil {
		if h, mm, ok := clock(m[1]); ok {
			return ParsedSchedule{fmt.Sprintf("%d %d * * *", mm, h), TypeCron}, true
		}
		return ParsedSchedule{}, false
	}
	if m := phraseWeeklyOn.FindStringSubmatch(s); m != nil {
		dow, ok := weekdays[m[1]]
		if !ok {
			return ParsedSchedule{}, false
		}
		h, mm := 0, 0
		if m[2] != "" {
			if h, mm, ok = clock(m[2]); !ok {
				return ParsedSchedule{}, false
			}
		}
		return ParsedSchedule{fmt.Sprintf("%d %d * * %d", mm, h, dow), TypeCron}, true
	}
	if m := phraseIn.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n <= 0 {
			return ParsedSchedule{}, false
		}
		return ParsedSchedule{duration(n, unitSuffix[m[2]]), TypeAt}, true
	}
	return ParsedSchedule{}, false
}

// duration formats n units as a Go duration; days become hours.
func duration(n int, unit string) string {
	if unit == "d" {
		return strconv.Itoa(n*24) + "h"
	}
	return strconv.Itoa(n) + unit
}

// clock parses "9", "9:30", "9am", "3:30pm" or "14:00".
func clock(s string) (hour, minute int, ok bool) {
	s = strings.TrimSpace(s)
	pm := strings.HasSuffix(s, "pm")
	am := strings.HasSuffix(s, "am")
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "pm"), "am"))

	hh, mm, hasMin := strings.Cut(s, ":")
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	if hasMin {
		if minute, err = strconv.Atoi(mm); err != nil || minute < 0 || minute > 59 {
			return 0, 0, false
		}
	}
	if (am || pm) && hour > 12 {
		return 0, 0, false
	}
	switch {
	case pm && hour < 12:
		hour += 12
	case am && hour == 12:
		hour = 0
	}
	return hour, minute, true
}
