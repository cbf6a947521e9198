// Package room drives a single race room: it reacts to chat commands
// and race status changes, runs the settings draft, hands finished
// drafts to the seed roller, relays roll progress into chat and
// unlocks spoiler logs when the race ends.
package room

import (
	"fmt"
	"strings"
	"time"
)

// Language selects the wording of user-facing messages. Events run in
// English unless configured otherwise.
type Language int

const (
	English Language = iota
	French
)

func (l Language) String() string {
	if l == French {
		return "fr"
	}
	return "en"
}

// FormatDuration renders d as running text, e.g. "2 hours 30 minutes".
func (l Language) FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	hours := secs / 3600
	mins := (secs % 3600) / 60
	secs = secs % 60

	var parts []string
	add := func(n int64, singular string) {
		if n == 0 {
			return
		}
		unit := singular
		if n != 1 {
			unit += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, unit))
	}
	switch l {
	case French:
		add(hours, "heure")
		add(mins, "minute")
		add(secs, "seconde")
		switch len(parts) {
		case 0:
			return "0 secondes"
		case 1:
			return parts[0]
		default:
			return strings.Join(parts[:len(parts)-1], ", ") + " et " + parts[len(parts)-1]
		}
	default:
		add(hours, "hour")
		add(mins, "minute")
		add(secs, "second")
		if len(parts) == 0 {
			return "0 seconds"
		}
		if len(parts) == 2 {
			return parts[0] + " and " + parts[1]
		}
		if len(parts) == 3 {
			return parts[0] + ", " + parts[1] + ", and " + parts[2]
		}
		return parts[0]
	}
}
