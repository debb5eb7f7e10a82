package resources

import (
	"time"
)

// StatusInput carries everything the status computation needs. Callers load
// the pieces (active reservation check, schedule) before invoking; the
// computation itself performs no I/O.
type StatusInput struct {
	UnavailableSince *time.Time
	AutoResetHours   int
	HasActiveNow     bool
	ScheduleClosed   bool
}

// ComputeStatus derives the resource status for a given instant.
//
// Rules:
//   - an explicit unavailability (UnavailableSince set) holds until
//     AutoResetHours have elapsed, then the resource resets
//   - schedule-induced unavailability (all days closed, or an active
//     blackout) never auto-resets; it clears when the schedule does
//   - otherwise the status follows whether an active reservation covers now
func ComputeStatus(in StatusInput, now time.Time) ResourceStatus {
	if in.UnavailableSince != nil {
		elapsed := now.Sub(*in.UnavailableSince)
		if in.AutoResetHours > 0 && elapsed >= time.Duration(in.AutoResetHours)*time.Hour {
			if in.HasActiveNow {
				return StatusInUse
			}
			return StatusAvailable
		}
		return StatusUnavailable
	}

	if in.ScheduleClosed {
		return StatusUnavailable
	}

	if in.HasActiveNow {
		return StatusInUse
	}
	return StatusAvailable
}

// ScheduleClosed reports whether the weekly schedule or a blackout makes the
// resource unavailable at the given instant. A resource with no configured
// business hours is open around the clock.
func ScheduleClosed(hours []BusinessHours, blackouts []BlackoutDate, now time.Time) bool {
	if len(hours) > 0 {
		allClosed := true
		for _, h := range hours {
			if !h.IsClosed {
				allClosed = false
				break
			}
		}
		if allClosed {
			return true
		}
	}

	for _, b := range blackouts {
		if !now.Before(b.StartDate) && now.Before(b.EndDate) {
			return true
		}
	}

	return false
}

// WithinBusinessHours reports whether the window [start, end) falls inside
// the configured open hours for its weekday. Windows on days without a
// configured row are allowed. Used by booking validation; windows crossing
// midnight are checked against the start day only.
func WithinBusinessHours(hours []BusinessHours, start, end time.Time) bool {
	if len(hours) == 0 {
		return true
	}

	day := int(start.UTC().Weekday())
	for _, h := range hours {
		if h.DayOfWeek != day {
			continue
		}
		if h.IsClosed {
			return false
		}
		open, errOpen := parseClock(h.OpenTime)
		closeAt, errClose := parseClock(h.CloseTime)
		if errOpen != nil || errClose != nil {
			return true
		}
		startClock := start.UTC().Hour()*60 + start.UTC().Minute()
		endClock := end.UTC().Hour()*60 + end.UTC().Minute()
		if endClock == 0 {
			endClock = 24 * 60
		}
		return startClock >= open && endClock <= closeAt
	}
	return true
}

// BlackedOut reports whether [start, end) intersects any blackout window.
func BlackedOut(blackouts []BlackoutDate, start, end time.Time) bool {
	for _, b := range blackouts {
		if b.EndDate.After(start) && b.StartDate.Before(end) {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
