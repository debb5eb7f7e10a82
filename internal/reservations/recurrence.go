package reservations

import (
	"sort"
	"time"

	"reserver/internal/shared/apperrors"
)

// MaxOccurrences bounds every series regardless of its end rule.
const MaxOccurrences = 100

// Occurrence is one concrete window produced by expanding a rule.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Expand turns a recurrence rule plus an anchor window into the concrete
// occurrence list. Pure; performs no I/O. The window duration is preserved
// for every occurrence and the result never exceeds MaxOccurrences.
func Expand(start, end time.Time, rule RecurrenceRuleRequest) ([]Occurrence, error) {
	start = start.UTC()
	end = end.UTC()
	duration := end.Sub(start)

	if err := validateRule(rule); err != nil {
		return nil, err
	}

	interval := rule.Interval
	if interval == 0 {
		interval = 1
	}

	var out []Occurrence
	emit := func(s time.Time) bool {
		if len(out) >= MaxOccurrences {
			return false
		}
		if rule.EndType == EndAfterCount && len(out) >= *rule.OccurrenceCount {
			return false
		}
		if rule.EndType == EndOnDate && s.After(rule.EndDate.UTC()) {
			return false
		}
		out = append(out, Occurrence{Start: s, End: s.Add(duration)})
		return true
	}

	switch rule.Frequency {
	case FrequencyDaily:
		for i := 0; ; i++ {
			if !emit(start.AddDate(0, 0, i*interval)) {
				break
			}
		}

	case FrequencyWeekly:
		if len(rule.DaysOfWeek) == 0 {
			for i := 0; ; i++ {
				if !emit(start.AddDate(0, 0, i*interval*7)) {
					break
				}
			}
			break
		}

		days := append([]int(nil), rule.DaysOfWeek...)
		sort.Ints(days)
		// Anchor each occurrence on the named weekday within the week of
		// the anchor start (weeks begin on Sunday, day 0).
		weekBase := start.AddDate(0, 0, -int(start.Weekday()))
	weekly:
		for w := 0; ; w += interval {
			for _, d := range days {
				candidate := weekBase.AddDate(0, 0, w*7+d)
				if candidate.Before(start) {
					continue
				}
				if !emit(candidate) {
					break weekly
				}
			}
		}

	case FrequencyMonthly:
		for i := 0; ; i++ {
			if !emit(addMonthsClamped(start, i*interval)) {
				break
			}
		}
	}

	if len(out) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "recurrence rule produces no occurrences")
	}
	return out, nil
}

func validateRule(rule RecurrenceRuleRequest) error {
	switch rule.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return apperrors.Newf(apperrors.KindValidation, "unknown frequency %q", rule.Frequency)
	}

	if rule.Interval < 0 {
		return apperrors.New(apperrors.KindValidation, "interval must be >= 1")
	}

	for _, d := range rule.DaysOfWeek {
		if d < 0 || d > 6 {
			return apperrors.Newf(apperrors.KindValidation, "invalid day_of_week %d", d)
		}
	}
	if len(rule.DaysOfWeek) > 0 && rule.Frequency != FrequencyWeekly {
		return apperrors.New(apperrors.KindValidation, "days_of_week only applies to weekly rules")
	}

	switch rule.EndType {
	case EndNever:
	case EndOnDate:
		if rule.EndDate == nil {
			return apperrors.New(apperrors.KindValidation, "end_date required for on_date rules")
		}
	case EndAfterCount:
		if rule.OccurrenceCount == nil {
			return apperrors.New(apperrors.KindValidation, "occurrence_count required for after_count rules")
		}
		if *rule.OccurrenceCount < 1 || *rule.OccurrenceCount > MaxOccurrences {
			return apperrors.Newf(apperrors.KindValidation,
				"occurrence_count must be between 1 and %d", MaxOccurrences)
		}
	default:
		return apperrors.Newf(apperrors.KindValidation, "unknown end_type %q", rule.EndType)
	}

	return nil
}

// addMonthsClamped adds months to t, clamping the day-of-month to the last
// valid day of the target month (Jan 31 + 1 month = Feb 28/29). Plain
// AddDate would overflow into the following month instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).
		AddDate(0, months, 0)

	lastDay := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
