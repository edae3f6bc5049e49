// Package routes maps a notification to its in-app destination. The
// resolver is a pure function over category and metadata; navigation
// itself belongs to the host app.
package routes

import (
	"net/url"
	"strconv"

	"github.com/caseflow/notify/internal/model"
)

// Route is a navigable destination handed to the host's router.
type Route struct {
	Path  string
	Query url.Values
}

// entityPaths maps a typed entity_type metadata value to its path
// prefix. Preferred over the per-category fallback keys when present.
var entityPaths = map[string]string{
	"client":      "/clients",
	"application": "/applications",
	"visa_case":   "/visa-cases",
	"reminder":    "/reminders",
	"task":        "/tasks",
}

// fallbackKeys maps each category to the metadata key consulted when no
// typed entity reference is present.
var fallbackKeys = map[model.Category]struct {
	key  string
	path string
}{
	model.CategoryClientAssigned:      {"client_id", "/clients"},
	model.CategoryApplicationAssigned: {"application_id", "/applications"},
	model.CategoryVisaCaseAssigned:    {"visa_case_id", "/visa-cases"},
	model.CategoryReminderDue:         {"reminder_id", "/reminders"},
	model.CategoryTaskAssigned:        {"task_id", "/tasks"},
	model.CategoryTaskDueSoon:         {"task_id", "/tasks"},
	model.CategoryTaskOverdue:         {"task_id", "/tasks"},
	model.CategoryTaskMentioned:       {"task_id", "/tasks"},
}

// Resolve returns the destination for a notification, or nil when the
// category has no navigable target (system-alert) or the metadata is
// missing or malformed. It never panics.
func Resolve(n *model.Notification) *Route {
	if n == nil || n.Category == model.CategorySystemAlert {
		return nil
	}

	path := resolvePath(n)
	if path == "" {
		return nil
	}

	route := &Route{Path: path, Query: url.Values{}}

	// Mentions land on the task's comment thread when the reference
	// survived.
	if n.Category == model.CategoryTaskMentioned {
		if commentID := metaID(n, "comment_id"); commentID != "" {
			route.Query.Set("comment", commentID)
		}
	}

	return route
}

// resolvePath prefers a typed (entity_type, entity_id) pair and falls
// back to the category-specific id key.
func resolvePath(n *model.Notification) string {
	if entityType := metaID(n, "entity_type"); entityType != "" {
		if prefix, ok := entityPaths[entityType]; ok {
			if id := metaID(n, "entity_id"); id != "" {
				return prefix + "/" + url.PathEscape(id)
			}
		}
	}

	fb, ok := fallbackKeys[n.Category]
	if !ok {
		return ""
	}
	id := metaID(n, fb.key)
	if id == "" {
		return ""
	}
	return fb.path + "/" + url.PathEscape(id)
}

// metaID reads a metadata value as an identifier string. The backend
// serializes some ids as JSON numbers, so both forms are accepted.
func metaID(n *model.Notification, key string) string {
	if n.Metadata == nil {
		return ""
	}
	switch v := n.Metadata[key].(type) {
	case string:
		return v
	case float64:
		if v != float64(int64(v)) {
			return ""
		}
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}
