// Package availability turns opening hours and busy intervals into bookable
// 30-minute slots.
package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"barbershop/backend/internal/domain"
)

const SlotStep = 30 * time.Minute

var ErrInvalidClock = errors.New("invalid clock time")

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(value string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return h*60 + m, nil
}

// openingMinutes returns open and close as minutes after midnight of the
// requested day. A close at or before open belongs to the next day.
func openingMinutes(settings domain.Settings) (int, int, error) {
	settings = settings.WithDefaults()
	open, err := ParseClock(settings.OpenTime)
	if err != nil {
		return 0, 0, err
	}
	closing, err := ParseClock(settings.CloseTime)
	if err != nil {
		return 0, 0, err
	}
	if closing <= open {
		closing += 24 * 60
	}
	return open, closing, nil
}

func parseDate(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(domain.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return day, nil
}

// BusyWindow is the instant range covering every slot of date, including
// the part of an overnight shift that runs into the following day.
func BusyWindow(date string, settings domain.Settings, loc *time.Location) (time.Time, time.Time, error) {
	day, err := parseDate(date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	open, closing, err := openingMinutes(settings)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day.Add(time.Duration(open) * time.Minute), day.Add(time.Duration(closing) * time.Minute), nil
}

// WithinOpeningHours reports whether t falls inside the opening hours of its
// own day or inside the previous day's shift running past midnight.
func WithinOpeningHours(t time.Time, settings domain.Settings, loc *time.Location) (bool, error) {
	local := t.In(loc)
	for _, day := range []time.Time{local, local.AddDate(0, 0, -1)} {
		from, to, err := BusyWindow(day.Format(domain.DateLayout), settings, loc)
		if err != nil {
			return false, err
		}
		if !t.Before(from) && t.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

// FromAppointments converts stored appointments into busy intervals.
func FromAppointments(appts []domain.Appointment) []domain.BusyInterval {
	intervals := make([]domain.BusyInterval, 0, len(appts))
	for _, appt := range appts {
		intervals = append(intervals, domain.BusyInterval{Start: appt.StartTime, End: appt.EndTime})
	}
	return intervals
}

// Overlapping keeps the intervals that intersect [from, to).
func Overlapping(intervals []domain.BusyInterval, from, to time.Time) []domain.BusyInterval {
	out := make([]domain.BusyInterval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Start.Before(to) && iv.End.After(from) {
			out = append(out, iv)
		}
	}
	return out
}

// IsBusy reports whether any interval contains start. Only the start of a
// slot is checked.
func IsBusy(start time.Time, intervals []domain.BusyInterval) bool {
	for _, iv := range intervals {
		if iv.Contains(start) {
			return true
		}
	}
	return false
}

// ComputeSlots lists every candidate start of date in chronological order.
// Past and busy are independent flags; external may be nil when the feed
// is unavailable.
func ComputeSlots(date string, settings domain.Settings, appts []domain.Appointment, external []domain.BusyInterval, now time.Time, loc *time.Location) ([]domain.Slot, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := parseDate(date, loc)
	if err != nil {
		return nil, err
	}
	open, closing, err := openingMinutes(settings)
	if err != nil {
		return nil, err
	}

	busy := append(FromAppointments(appts), external...)
	isToday := now.In(loc).Format(domain.DateLayout) == date

	step := int(SlotStep / time.Minute)
	slots := make([]domain.Slot, 0, (closing-open)/step+1)
	for m := open; m < closing; m += step {
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, m, 0, 0, loc)
		slots = append(slots, domain.Slot{
			Time:  start.Format(domain.ClockLayout),
			Start: start,
			Past:  isToday && start.Before(now),
			Busy:  IsBusy(start, busy),
		})
	}
	return slots, nil
}
