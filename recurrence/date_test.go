package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateAddDays(t *testing.T) {
	tests := []struct {
		name string
		from Date
		days int
		want Date
	}{
		{"within month", NewDate(2025, time.January, 10), 5, NewDate(2025, time.January, 15)},
		{"month boundary", NewDate(2025, time.January, 31), 1, NewDate(2025, time.February, 1)},
		{"leap day", NewDate(2024, time.February, 28), 1, NewDate(2024, time.February, 29)},
		{"non-leap february", NewDate(2025, time.February, 28), 1, NewDate(2025, time.March, 1)},
		{"year boundary", NewDate(2024, time.December, 31), 1, NewDate(2025, time.January, 1)},
		{"negative", NewDate(2025, time.March, 1), -1, NewDate(2025, time.February, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.AddDays(tt.days))
		})
	}
}

func TestDateDaysUntil(t *testing.T) {
	a := NewDate(2025, time.January, 1)
	assert.Equal(t, 31, a.DaysUntil(NewDate(2025, time.February, 1)))
	assert.Equal(t, 0, a.DaysUntil(a))
	assert.Equal(t, -1, a.DaysUntil(NewDate(2024, time.December, 31)))
}

func TestDateCompare(t *testing.T) {
	a := NewDate(2025, time.March, 15)
	b := NewDate(2025, time.April, 1)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.Equal(NewDate(2025, time.March, 15)))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, NewDate(2024, time.December, 31).Compare(a))
}

func TestDateWeekday(t *testing.T) {
	assert.Equal(t, time.Monday, NewDate(2025, time.January, 6).Weekday())
	assert.Equal(t, time.Sunday, NewDate(2025, time.January, 5).Weekday())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-09")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2025, time.June, 9), d)
	assert.Equal(t, "2025-06-09", d.String())

	_, err = ParseDate("June 9, 2025")
	assert.Error(t, err)
	_, err = ParseDate("2025-02-30")
	assert.Error(t, err)
}

func TestNewDateNormalizes(t *testing.T) {
	assert.Equal(t, NewDate(2025, time.February, 1), NewDate(2025, time.January, 32))
}

func TestDateJSON(t *testing.T) {
	// Date serves both as a JSON value and as an object key.
	m := map[Date]string{NewDate(2025, time.July, 4): "x"}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"2025-07-04":"x"}`, string(raw))

	var back map[Date]string
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, m, back)
}

func TestDateAtHonorsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	at := NewDate(2025, time.July, 1).At(TimeOfDay{Hour: 9}, loc)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, loc, at.Location())
	// CEST is UTC+2.
	assert.Equal(t, 7, at.UTC().Hour())
}
