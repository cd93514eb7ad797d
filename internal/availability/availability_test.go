package availability

import (
	"testing"
	"time"

	"barbershop/backend/internal/domain"
)

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return ts
}

func TestComputeSlotsThreeHourShiftHasSixSlots(t *testing.T) {
	now := mustDate(t, "2024-05-01T00:00:00Z")
	slots, err := ComputeSlots("2024-06-01", domain.Settings{OpenTime: "10:00", CloseTime: "13:00"}, nil, nil, now, time.UTC)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	if slots[0].Time != "10:00" || slots[5].Time != "12:30" {
		t.Fatalf("unexpected bounds %s..%s", slots[0].Time, slots[5].Time)
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].Start.After(slots[i-1].Start) {
			t.Fatalf("slots not chronological at %d", i)
		}
	}
}

func TestComputeSlotsMarksContainedStartBusy(t *testing.T) {
	now := mustDate(t, "2024-05-01T00:00:00Z")
	appts := []domain.Appointment{{
		StartTime: mustDate(t, "2024-06-01T11:00:00Z"),
		EndTime:   mustDate(t, "2024-06-01T11:30:00Z"),
	}}
	slots, err := ComputeSlots("2024-06-01", domain.Settings{OpenTime: "10:00", CloseTime: "13:00"}, appts, nil, now, time.UTC)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	busy := map[string]bool{}
	for _, s := range slots {
		busy[s.Time] = s.Busy
	}
	if !busy["11:00"] {
		t.Fatalf("expected 11:00 busy")
	}
	if busy["10:30"] || busy["11:30"] {
		t.Fatalf("expected 10:30 and 11:30 free, got %+v", busy)
	}
}

func TestComputeSlotsWrapsPastMidnight(t *testing.T) {
	now := mustDate(t, "2024-05-01T00:00:00Z")
	slots, err := ComputeSlots("2024-06-01", domain.Settings{OpenTime: "22:00", CloseTime: "01:00"}, nil, nil, now, time.UTC)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(slots) != 6 {
		t.Fatalf("expected 6 overnight slots, got %d", len(slots))
	}
	last := slots[len(slots)-1]
	if last.Time != "00:30" || last.Start.Day() != 2 {
		t.Fatalf("expected last slot 00:30 on the next day, got %s %s", last.Time, last.Start)
	}

	from, to, err := BusyWindow("2024-06-01", domain.Settings{OpenTime: "22:00", CloseTime: "01:00"}, time.UTC)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if !from.Equal(mustDate(t, "2024-06-01T22:00:00Z")) || !to.Equal(mustDate(t, "2024-06-02T01:00:00Z")) {
		t.Fatalf("unexpected window %s..%s", from, to)
	}
}

func TestComputeSlotsPastOnlyAppliesToToday(t *testing.T) {
	now := mustDate(t, "2024-06-01T11:15:00Z")
	settings := domain.Settings{OpenTime: "10:00", CloseTime: "13:00"}

	today, _ := ComputeSlots("2024-06-01", settings, nil, nil, now, time.UTC)
	for _, s := range today {
		want := s.Start.Before(now)
		if s.Past != want {
			t.Fatalf("slot %s: past=%v want %v", s.Time, s.Past, want)
		}
	}

	tomorrow, _ := ComputeSlots("2024-06-02", settings, nil, nil, now, time.UTC)
	for _, s := range tomorrow {
		if s.Past {
			t.Fatalf("slot %s on a future date must not be past", s.Time)
		}
	}
}

func TestBusyMatchesIntervalContainment(t *testing.T) {
	now := mustDate(t, "2024-05-01T00:00:00Z")
	external := []domain.BusyInterval{
		{Start: mustDate(t, "2024-06-01T10:15:00Z"), End: mustDate(t, "2024-06-01T10:45:00Z")},
		{Start: mustDate(t, "2024-06-01T12:00:00Z"), End: mustDate(t, "2024-06-01T13:00:00Z")},
	}
	slots, err := ComputeSlots("2024-06-01", domain.Settings{OpenTime: "10:00", CloseTime: "14:00"}, nil, external, now, time.UTC)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	for _, s := range slots {
		contained := false
		for _, iv := range external {
			if !s.Start.Before(iv.Start) && s.Start.Before(iv.End) {
				contained = true
			}
		}
		if s.Busy != contained {
			t.Fatalf("slot %s: busy=%v contained=%v", s.Time, s.Busy, contained)
		}
	}
}

func TestComputeSlotsUsesShopLocation(t *testing.T) {
	loc := time.FixedZone("AST", 3*60*60)
	now := mustDate(t, "2024-05-01T00:00:00Z")
	appts := []domain.Appointment{{
		StartTime: mustDate(t, "2024-06-01T08:00:00Z"),
		EndTime:   mustDate(t, "2024-06-01T08:30:00Z"),
	}}
	slots, err := ComputeSlots("2024-06-01", domain.Settings{OpenTime: "10:00", CloseTime: "12:00"}, appts, nil, now, loc)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !slots[2].Busy || slots[2].Time != "11:00" {
		t.Fatalf("expected local 11:00 busy, got %+v", slots[2])
	}
}

func TestParseClockRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "25:00", "10", "10:6", "ab:cd"} {
		if _, err := ParseClock(value); err == nil {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
	if m, err := ParseClock("09:30"); err != nil || m != 570 {
		t.Fatalf("expected 570 minutes, got %d %v", m, err)
	}
}

func TestWithinOpeningHoursCoversOvernightShift(t *testing.T) {
	settings := domain.Settings{OpenTime: "18:00", CloseTime: "02:00"}
	cases := map[string]bool{
		"2024-06-01T17:30:00Z": false,
		"2024-06-01T18:00:00Z": true,
		"2024-06-01T23:30:00Z": true,
		"2024-06-02T01:30:00Z": true,
		"2024-06-02T02:00:00Z": false,
		"2024-06-02T10:00:00Z": false,
	}
	for value, want := range cases {
		got, err := WithinOpeningHours(mustDate(t, value), settings, time.UTC)
		if err != nil {
			t.Fatalf("%s: %v", value, err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", value, want, got)
		}
	}
}
