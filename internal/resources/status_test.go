package resources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatusFollowsActiveReservation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, StatusAvailable, ComputeStatus(StatusInput{}, now))
	assert.Equal(t, StatusInUse, ComputeStatus(StatusInput{HasActiveNow: true}, now))
}

func TestComputeStatusExplicitUnavailability(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-2 * time.Hour)

	got := ComputeStatus(StatusInput{
		UnavailableSince: &since,
		AutoResetHours:   24,
	}, now)
	assert.Equal(t, StatusUnavailable, got)
}

func TestComputeStatusAutoReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-25 * time.Hour)

	got := ComputeStatus(StatusInput{
		UnavailableSince: &since,
		AutoResetHours:   24,
	}, now)
	assert.Equal(t, StatusAvailable, got)

	// An active reservation covering now resolves straight to in_use.
	got = ComputeStatus(StatusInput{
		UnavailableSince: &since,
		AutoResetHours:   24,
		HasActiveNow:     true,
	}, now)
	assert.Equal(t, StatusInUse, got)
}

func TestComputeStatusScheduleClosedNeverAutoResets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Schedule-induced unavailability has no UnavailableSince, so elapsed
	// time is irrelevant; only the schedule clearing changes the status.
	got := ComputeStatus(StatusInput{
		AutoResetHours: 1,
		ScheduleClosed: true,
	}, now)
	assert.Equal(t, StatusUnavailable, got)

	got = ComputeStatus(StatusInput{
		AutoResetHours: 1,
		ScheduleClosed: false,
	}, now)
	assert.Equal(t, StatusAvailable, got)
}

func TestScheduleClosed(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) // Monday

	t.Run("no schedule means open", func(t *testing.T) {
		assert.False(t, ScheduleClosed(nil, nil, now))
	})

	t.Run("all days closed", func(t *testing.T) {
		hours := []BusinessHours{
			{DayOfWeek: 1, IsClosed: true},
			{DayOfWeek: 2, IsClosed: true},
		}
		assert.True(t, ScheduleClosed(hours, nil, now))
	})

	t.Run("some day open", func(t *testing.T) {
		hours := []BusinessHours{
			{DayOfWeek: 1, OpenTime: "09:00", CloseTime: "17:00"},
			{DayOfWeek: 2, IsClosed: true},
		}
		assert.False(t, ScheduleClosed(hours, nil, now))
	})

	t.Run("active blackout", func(t *testing.T) {
		blackouts := []BlackoutDate{{
			StartDate: now.Add(-time.Hour),
			EndDate:   now.Add(time.Hour),
		}}
		assert.True(t, ScheduleClosed(nil, blackouts, now))
	})

	t.Run("past blackout", func(t *testing.T) {
		blackouts := []BlackoutDate{{
			StartDate: now.Add(-48 * time.Hour),
			EndDate:   now.Add(-24 * time.Hour),
		}}
		assert.False(t, ScheduleClosed(nil, blackouts, now))
	})
}

func TestWithinBusinessHours(t *testing.T) {
	hours := []BusinessHours{
		{DayOfWeek: 1, OpenTime: "09:00", CloseTime: "17:00"}, // Monday
		{DayOfWeek: 6, IsClosed: true},                        // Saturday
	}

	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	assert.True(t, WithinBusinessHours(hours, monday.Add(10*time.Hour), monday.Add(11*time.Hour)))
	assert.False(t, WithinBusinessHours(hours, monday.Add(8*time.Hour), monday.Add(9*time.Hour)))
	assert.False(t, WithinBusinessHours(hours, monday.Add(16*time.Hour), monday.Add(18*time.Hour)))

	saturday := time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC)
	assert.False(t, WithinBusinessHours(hours, saturday, saturday.Add(time.Hour)))

	// Tuesday has no configured row; treated as open.
	tuesday := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	assert.True(t, WithinBusinessHours(hours, tuesday, tuesday.Add(time.Hour)))
}

func TestBlackedOut(t *testing.T) {
	blackouts := []BlackoutDate{{
		StartDate: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC),
	}}

	inside := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	assert.True(t, BlackedOut(blackouts, inside, inside.Add(time.Hour)))

	before := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)
	assert.False(t, BlackedOut(blackouts, before, before.Add(time.Hour)))

	// Half-open boundary: a window ending exactly at the blackout start
	// does not intersect.
	edge := time.Date(2025, 6, 9, 23, 0, 0, 0, time.UTC)
	assert.False(t, BlackedOut(blackouts, edge, edge.Add(time.Hour)))
}
