package models

import "time"

// Relation labels used on connections. The set is open; these are the ones
// the agent and analyzer produce.
const (
	RelationRelated      = "RELATED"
	RelationSimilar      = "SIMILAR"
	RelationFollowUp     = "FOLLOW_UP"
	RelationPrerequisite = "PREREQUISITE"
	RelationPlanStep     = "PLAN_STEP"
	RelationRelatedLink  = "RELATED_LINK"
	RelationContrast     = "CONTRAST"
)

// Connection is a directed, labeled edge between two notes of the same user.
type Connection struct {
	ID        int64     `json:"id"`
	SourceID  int64     `json:"source_id"`
	TargetID  int64     `json:"target_id"`
	Relation  string    `json:"relation"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteWithConnections bundles a note and every edge touching it.
type NoteWithConnections struct {
	Note
	Connections []Connection `json:"connections"`
}

// CalendarEventLink ties a note to an event in the external calendar.
type CalendarEventLink struct {
	ID              int64     `json:"id"`
	NoteID          int64     `json:"note_id"`
	UserID          int64     `json:"user_id"`
	EventID         string    `json:"event_id"`
	CalendarID      string    `json:"calendar_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Location        string    `json:"location,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	AllDay          bool      `json:"is_all_day"`
	ReminderMinutes int       `json:"reminder_minutes"`
	CreatedByAI     bool      `json:"created_by_ai"`
	CreatedAt       time.Time `json:"created_at"`
}
