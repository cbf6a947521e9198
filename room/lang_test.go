package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	for _, tc := range []struct {
		lang Language
		d    time.Duration
		want string
	}{
		{English, 0, "0 seconds"},
		{English, time.Second, "1 second"},
		{English, 5 * time.Minute, "5 minutes"},
		{English, 2*time.Hour + 30*time.Minute, "2 hours and 30 minutes"},
		{English, time.Hour + 23*time.Minute + 45*time.Second, "1 hour, 23 minutes, and 45 seconds"},
		{French, 0, "0 secondes"},
		{French, time.Hour, "1 heure"},
		{French, 2*time.Hour + 30*time.Minute, "2 heures et 30 minutes"},
		{French, time.Hour + 23*time.Minute + 45*time.Second, "1 heure, 23 minutes et 45 secondes"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.lang.FormatDuration(tc.d))
		})
	}
}

func TestLanguageString(t *testing.T) {
	assert.Equal(t, "en", English.String())
	assert.Equal(t, "fr", French.String())
}
