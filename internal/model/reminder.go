package model

import "time"

// ReminderPreference is a user's named lead-time setting. LeadTime is in seconds.
type ReminderPreference struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	LeadTime  int64     `json:"lead_time"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduledReminder is one concrete firing of a preference for a task.
type ScheduledReminder struct {
	ID           int64      `json:"id"`
	TaskID       int64      `json:"task_id"`
	PreferenceID *int64     `json:"preference_id"`
	RecipientID  int64      `json:"recipient_id"`
	FireAt       time.Time  `json:"fire_at"`
	SentAt       *time.Time `json:"sent_at"`
}

// DueReminder is a scheduled reminder loaded with its task and recipient.
type DueReminder struct {
	Reminder  ScheduledReminder
	Task      Task
	Recipient User
}

// Lead times are bounded to [1 minute, 1 week].
const (
	MinLeadTime int64 = 60
	MaxLeadTime int64 = 7 * 24 * 60 * 60
)

// DefaultReminderPreferences are seeded for every new user.
func DefaultReminderPreferences() []ReminderPreference {
	return []ReminderPreference{
		{Name: "2 Hour Reminder", LeadTime: 2 * 60 * 60, Enabled: true},
		{Name: "24 Hour Reminder", LeadTime: 24 * 60 * 60, Enabled: true},
	}
}
