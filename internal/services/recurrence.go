package services

import (
	"time"

	"github.com/saeid-a/GroupCoachBack/internal/models"
)

// recurrenceIntervalDays maps a recurrence pattern to its fixed day interval.
var recurrenceIntervalDays = map[string]int{
	models.RecurrenceDaily:    1,
	models.RecurrenceWeekly:   7,
	models.RecurrenceBiweekly: 14,
	models.RecurrenceMonthly:  30,
}

// ExpandRecurrence materializes the occurrences of a recurring template:
// copies of the template scheduled at scheduledAt + k*interval for k = 1, 2,
// ... while the computed date stays within the recurrence end date. Every
// occurrence comes back non-recurring so a later create can never expand it
// again.
func ExpandRecurrence(template *models.GroupSession) []models.GroupSession {
	interval, ok := recurrenceIntervalDays[template.RecurrencePattern]
	if !ok || template.RecurrenceEndDate == nil {
		return nil
	}

	step := time.Duration(interval) * 24 * time.Hour
	endDate := *template.RecurrenceEndDate

	occurrences := make([]models.GroupSession, 0)
	for next := template.ScheduledAt.Add(step); !next.After(endDate); next = next.Add(step) {
		occurrence := *template
		occurrence.ID = 0
		occurrence.ScheduledAt = next
		occurrence.RecurrencePattern = models.RecurrenceNone
		occurrence.RecurrenceEndDate = nil
		occurrence.CurrentParticipants = 0
		occurrence.WaitlistCount = 0
		occurrences = append(occurrences, occurrence)
	}
	return occurrences
}
