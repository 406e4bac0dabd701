package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAction(t *testing.T) {
	for _, raw := range []string{"viewed", "clicked", "dismissed"} {
		action, err := ParseAction(raw)
		assert.NoError(t, err)
		assert.Equal(t, Action(raw), action)
	}

	for _, raw := range []string{"", "liked", "CLICKED", "snoozed"} {
		_, err := ParseAction(raw)
		assert.Error(t, err, "action %q should not parse", raw)
	}
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)

	// 02:30 on Aug 23 in UTC+5 is still Aug 22 in UTC.
	local := time.Date(2026, 8, 23, 2, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC), DateOf(local))

	utc := time.Date(2026, 8, 23, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC), DateOf(utc))
}

func TestUserPrefs_Muted(t *testing.T) {
	prefs := UserPrefs{
		UserID:          "user_1",
		MutedCategories: []string{"dining", "goals"},
	}

	assert.True(t, prefs.Muted("dining"))
	assert.False(t, prefs.Muted("budget"))

	empty := UserPrefs{UserID: "user_2"}
	assert.False(t, empty.Muted("dining"))
}
