package room

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DurationUnit is the unit assumed for a bare number in a duration
// string, e.g. "5" in "!breaks 5 every 2h30" means 5 minutes while the
// "2h30" interval side defaults to hours.
type DurationUnit int

const (
	Seconds DurationUnit = iota
	Minutes
	Hours
)

func (u DurationUnit) duration(magnitude int64) time.Duration {
	switch u {
	case Hours:
		return time.Duration(magnitude) * time.Hour
	case Minutes:
		return time.Duration(magnitude) * time.Minute
	default:
		return time.Duration(magnitude) * time.Second
	}
}

var (
	durationNumberRe = regexp.MustCompile(`^([0-9]+)(.*)$`)
	durationHoursRe  = regexp.MustCompile(`(?i)^h(?:(?:ou)?r)?s?(.*)$`)
	durationMinsRe   = regexp.MustCompile(`(?i)^m(?:n|in(?:ute)?)?s?(.*)$`)
	durationSecsRe   = regexp.MustCompile(`(?i)^s(?:ec(?:ond)?)?s?(.*)$`)

	errBadDuration = errors.New("unrecognized duration format")
)

// ParseDuration reads user-typed durations like "5m", "2h30", "1h23m45s"
// or "1:23:45". A trailing bare number takes the unit implied by the
// preceding component, or defaultUnit if it is the only component.
func ParseDuration(s string, defaultUnit DurationUnit) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, errBadDuration
	}
	var total time.Duration
	unit := defaultUnit
	unitValid := true
	var pending *int64

	take := func(u DurationUnit, nextUnit DurationUnit, nextValid bool) error {
		if pending == nil {
			return errBadDuration
		}
		total += u.duration(*pending)
		pending = nil
		unit, unitValid = nextUnit, nextValid
		return nil
	}

	for s != "" {
		switch {
		case s[0] == ' ':
			s = s[1:]
		case s[0] >= '0' && s[0] <= '9':
			m := durationNumberRe.FindStringSubmatch(s)
			if pending != nil {
				return 0, errBadDuration
			}
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return 0, errBadDuration
			}
			pending = &n
			s = m[2]
		case s[0] == ':':
			if !unitValid {
				return 0, errBadDuration
			}
			var next DurationUnit
			var nextValid bool
			switch unit {
			case Hours:
				next, nextValid = Minutes, true
			case Minutes:
				next, nextValid = Seconds, true
			}
			if err := take(unit, next, nextValid); err != nil {
				return 0, err
			}
			s = s[1:]
		case s[0] == 'h' || s[0] == 'H':
			m := durationHoursRe.FindStringSubmatch(s)
			if m == nil {
				return 0, errBadDuration
			}
			if err := take(Hours, Minutes, true); err != nil {
				return 0, err
			}
			s = m[1]
		case s[0] == 'm' || s[0] == 'M':
			m := durationMinsRe.FindStringSubmatch(s)
			if m == nil {
				return 0, errBadDuration
			}
			if err := take(Minutes, Seconds, true); err != nil {
				return 0, err
			}
			s = m[1]
		case s[0] == 's' || s[0] == 'S':
			m := durationSecsRe.FindStringSubmatch(s)
			if m == nil {
				return 0, errBadDuration
			}
			if err := take(Seconds, 0, false); err != nil {
				return 0, err
			}
			s = m[1]
		default:
			return 0, errBadDuration
		}
	}
	if pending != nil {
		if !unitValid {
			return 0, errBadDuration
		}
		total += unit.duration(*pending)
	}
	return total, nil
}

// Breaks is a runner-requested pause schedule: Duration of each break,
// Interval between break starts.
type Breaks struct {
	Duration time.Duration
	Interval time.Duration
}

var breaksRe = regexp.MustCompile(`^(.+?) ?e(?:very)? ?(.+?)$`)

// ParseBreaks reads commands like "5m every 2h30". The break length
// defaults to minutes and the interval to hours.
func ParseBreaks(s string) (Breaks, error) {
	m := breaksRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Breaks{}, errBadDuration
	}
	duration, err := ParseDuration(m[1], Minutes)
	if err != nil {
		return Breaks{}, err
	}
	interval, err := ParseDuration(m[2], Hours)
	if err != nil {
		return Breaks{}, err
	}
	return Breaks{Duration: duration, Interval: interval}, nil
}

// Format renders the schedule for chat, e.g. "5 minutes every 2 hours
// and 30 minutes".
func (b Breaks) Format(lang Language) string {
	if lang == French {
		return lang.FormatDuration(b.Duration) + " toutes les " + lang.FormatDuration(b.Interval)
	}
	return lang.FormatDuration(b.Duration) + " every " + lang.FormatDuration(b.Interval)
}
