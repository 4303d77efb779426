package api

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
)

// notBlank rejects strings made of whitespace only.
var notBlank = validation.By(func(v any) error {
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return errors.New("cannot be blank")
		}
	case *string:
		if s != nil && strings.TrimSpace(*s) == "" {
			return errors.New("cannot be blank")
		}
	}
	return nil
})

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string `json:"title" example:"Graph algorithms"`
	Content string `json:"content" example:"Dijkstra finds shortest paths" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required, notBlank),
		validation.Field(&r.Title, validation.Length(0, 255)),
	)
}

// UpdateNoteRequest is the request body for updating a note. Absent
// fields are left unchanged.
type UpdateNoteRequest struct {
	Title   *string `json:"title,omitempty" example:"Graph algorithms"`
	Content *string `json:"content,omitempty" example:"Dijkstra and A*"`
}

// Validate implements validation.Validatable.
func (r *UpdateNoteRequest) Validate() error {
	if r.Title == nil && r.Content == nil {
		return errors.New("title or content is required")
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, notBlank),
		validation.Field(&r.Title, validation.Length(0, 255)),
	)
}

// ConnectionRequest is the request body for connecting two notes.
type ConnectionRequest struct {
	TargetID int64  `json:"note_b_id" example:"2" validate:"required"`
	Relation string `json:"relation" example:"RELATED"`
}

// Validate implements validation.Validatable.
func (r *ConnectionRequest) Validate() error {
	r.Relation = strings.ToUpper(strings.TrimSpace(r.Relation))
	if r.Relation == "" {
		r.Relation = models.RelationRelated
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.TargetID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Relation, validation.Length(1, 64)),
	)
}

// BatchAnalyzeRequest is the request body for batch analysis.
type BatchAnalyzeRequest struct {
	NoteIDs []int64 `json:"note_ids" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *BatchAnalyzeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.NoteIDs, validation.Required, validation.Length(1, 100)),
	)
}

// AgentRequest is the request body for the AI agent.
type AgentRequest struct {
	Message string `json:"message" example:"Remind me tomorrow at 10am about the dentist" validate:"required"`
}

// Validate implements validation.Validatable. Blank messages are passed
// through so the agent can answer them with a failure response.
func (r *AgentRequest) Validate() error { return nil }

// CalendarEventRequest is the request body for creating a calendar event.
type CalendarEventRequest struct {
	Summary         string     `json:"summary" example:"Dentist" validate:"required"`
	Description     string     `json:"description"`
	Location        string     `json:"location"`
	StartTime       time.Time  `json:"start_time" validate:"required"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	AllDay          bool       `json:"is_all_day"`
	ReminderMinutes int        `json:"reminder_minutes"`
	Language        string     `json:"language,omitempty" example:"en"`
}

// Validate implements validation.Validatable.
func (r *CalendarEventRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Summary, validation.Required, notBlank),
		validation.Field(&r.StartTime, validation.Required),
		validation.Field(&r.ReminderMinutes, validation.Min(0), validation.Max(40320)),
		validation.Field(&r.Language, validation.In("ru", "en")),
	)
}

// Draft converts the request into an event draft.
func (r *CalendarEventRequest) Draft() llm.EventDraft {
	d := llm.EventDraft{
		Title:           strings.TrimSpace(r.Summary),
		Description:     r.Description,
		Location:        r.Location,
		Start:           r.StartTime,
		AllDay:          r.AllDay,
		ReminderMinutes: r.ReminderMinutes,
	}
	if r.EndTime != nil {
		d.End = *r.EndTime
	}
	return d
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username string `json:"username" example:"alice"`
	Email    string `json:"email" example:"alice@example.com" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *RegisterRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username, validation.Length(0, 64)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 128)),
	)
}

// NoteTaskResponse is returned when note work was handed to the job queue.
type NoteTaskResponse struct {
	TaskID string       `json:"task_id" example:"2f1c..." validate:"required"`
	Status string       `json:"status" example:"PENDING" validate:"required"`
	Note   *models.Note `json:"note,omitempty"`
}

// TaskStatusResponse reports a background task.
type TaskStatusResponse struct {
	TaskID string `json:"task_id" validate:"required"`
	Status string `json:"status" example:"SUCCESS" validate:"required"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}
