package model

import "time"

// Category identifies the kind of event a notification reports.
// The set is closed; the backend never emits values outside it.
type Category string

const (
	CategoryClientAssigned      Category = "assignment-of-client"
	CategoryApplicationAssigned Category = "assignment-of-application"
	CategoryVisaCaseAssigned    Category = "assignment-of-visa-case"
	CategoryReminderDue         Category = "reminder-due"
	CategoryTaskAssigned        Category = "task-assigned"
	CategoryTaskDueSoon         Category = "task-due-soon"
	CategoryTaskOverdue         Category = "task-overdue"
	CategoryTaskMentioned       Category = "task-mentioned"
	CategorySystemAlert         Category = "system-alert"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryClientAssigned,
	CategoryApplicationAssigned,
	CategoryVisaCaseAssigned,
	CategoryReminderDue,
	CategoryTaskAssigned,
	CategoryTaskDueSoon,
	CategoryTaskOverdue,
	CategoryTaskMentioned,
	CategorySystemAlert,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Notification is a single server-originated alert. The client never
// creates one; records arrive via REST responses or pushed frames and
// are mutated only by read-state and completed-state changes.
type Notification struct {
	// ID is the server-assigned identifier, opaque to the client.
	ID string `json:"id"`

	// Category determines how the notification is rendered and routed.
	Category Category `json:"category"`

	// Title is the short human-readable headline.
	Title string `json:"title"`

	// Message is the full notification body text.
	Message string `json:"message"`

	// DueAt is set for reminder and task-deadline categories.
	DueAt *time.Time `json:"due_at,omitempty"`

	// Metadata holds category-specific entity references
	// (e.g. entity_type/entity_id) consumed by route resolution.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// ReadAt is set exactly when Read flips to true and never cleared.
	ReadAt *time.Time `json:"read_at,omitempty"`

	// Completed marks notifications whose underlying work item is done.
	Completed bool `json:"completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetaString returns the metadata value for key if it is a non-empty string.
func (n *Notification) MetaString(key string) (string, bool) {
	if n.Metadata == nil {
		return "", false
	}
	s, ok := n.Metadata[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
