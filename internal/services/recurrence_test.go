package services

import (
	"testing"
	"time"

	"github.com/saeid-a/GroupCoachBack/internal/models"
)

func TestExpandRecurrenceWeekly(t *testing.T) {
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 28)
	template := &models.GroupSession{
		Title:               "Weekly standup coaching",
		ScheduledAt:         start,
		RecurrencePattern:   models.RecurrenceWeekly,
		RecurrenceEndDate:   &end,
		CurrentParticipants: 5,
		WaitlistCount:       2,
	}

	occurrences := ExpandRecurrence(template)
	if len(occurrences) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", len(occurrences))
	}
	for i, occurrence := range occurrences {
		want := start.AddDate(0, 0, 7*(i+1))
		if !occurrence.ScheduledAt.Equal(want) {
			t.Errorf("occurrence %d scheduled at %s, want %s", i, occurrence.ScheduledAt, want)
		}
		if occurrence.RecurrencePattern != models.RecurrenceNone {
			t.Errorf("occurrence %d kept pattern %q", i, occurrence.RecurrencePattern)
		}
		if occurrence.RecurrenceEndDate != nil {
			t.Errorf("occurrence %d kept an end date", i)
		}
		if occurrence.CurrentParticipants != 0 || occurrence.WaitlistCount != 0 {
			t.Errorf("occurrence %d inherited counters", i)
		}
	}
}

func TestExpandRecurrenceEndDateOnBoundary(t *testing.T) {
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)
	template := &models.GroupSession{
		ScheduledAt:       start,
		RecurrencePattern: models.RecurrenceBiweekly,
		RecurrenceEndDate: &end,
	}

	occurrences := ExpandRecurrence(template)
	if len(occurrences) != 1 {
		t.Fatalf("expected the boundary occurrence to be included, got %d", len(occurrences))
	}
	if !occurrences[0].ScheduledAt.Equal(end) {
		t.Fatalf("occurrence at %s, want %s", occurrences[0].ScheduledAt, end)
	}
}

func TestExpandRecurrenceNonRecurring(t *testing.T) {
	template := &models.GroupSession{
		ScheduledAt:       time.Now().UTC(),
		RecurrencePattern: models.RecurrenceNone,
	}
	if got := ExpandRecurrence(template); len(got) != 0 {
		t.Fatalf("non-recurring template expanded into %d occurrences", len(got))
	}
}

func TestExpandRecurrenceMissingEndDate(t *testing.T) {
	template := &models.GroupSession{
		ScheduledAt:       time.Now().UTC(),
		RecurrencePattern: models.RecurrenceDaily,
	}
	if got := ExpandRecurrence(template); len(got) != 0 {
		t.Fatalf("template without end date expanded into %d occurrences", len(got))
	}
}
