package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole("student")
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, r)

	r, err = ParseRole(" Instructor ")
	require.NoError(t, err)
	assert.Equal(t, RoleInstructor, r)

	_, err = ParseRole("dean")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestCourseCloneIsolated(t *testing.T) {
	c := Course{ID: "c1", StudentIDs: []string{"a"}}
	cp := c.Clone()
	cp.StudentIDs = append(cp.StudentIDs, "b")
	cp.StudentIDs[0] = "z"

	assert.Equal(t, []string{"a"}, c.StudentIDs)
	assert.True(t, c.HasStudent("a"))
	assert.False(t, c.HasStudent("b"))
}

func TestDayAndClock(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 30, 15, 999, time.FixedZone("X", 3600))
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), Day(ts))
	assert.Equal(t, "14:30:15", Clock(ts).Format(ClockLayout))

	d, err := ParseDay("2024-03-09")
	require.NoError(t, err)
	assert.Equal(t, Day(ts), d)

	c, err := ParseClock("08:05")
	require.NoError(t, err)
	assert.Equal(t, "08:05:00", c.Format(ClockLayout))

	_, err = ParseDay("09/03/2024")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordKey(t *testing.T) {
	r := AttendanceRecord{CourseID: "c", StudentID: "s", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "c|s|2024-01-02", r.Key())
}
