package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/caseflow/notify/internal/model"
)

// categoryLabels are the short names rendered in the list.
var categoryLabels = map[model.Category]string{
	model.CategoryClientAssigned:      "client",
	model.CategoryApplicationAssigned: "application",
	model.CategoryVisaCaseAssigned:    "visa case",
	model.CategoryReminderDue:         "reminder",
	model.CategoryTaskAssigned:        "task",
	model.CategoryTaskDueSoon:         "task due",
	model.CategoryTaskOverdue:         "task overdue",
	model.CategoryTaskMentioned:       "mention",
	model.CategorySystemAlert:         "system",
}

// Item adapts a notification to the bubbles list item interface.
type Item struct {
	Notification model.Notification
}

// Title renders the headline with unread and category markers.
func (i Item) Title() string {
	marker := " "
	if !i.Notification.Read {
		marker = "●"
	}
	label := categoryLabels[i.Notification.Category]
	if label == "" {
		label = string(i.Notification.Category)
	}
	return fmt.Sprintf("%s [%s] %s", marker, label, i.Notification.Title)
}

// Description renders the body plus due info on one line.
func (i Item) Description() string {
	desc := age(i.Notification.CreatedAt) + " · " + strings.ReplaceAll(i.Notification.Message, "\n", " ")
	if i.Notification.DueAt != nil {
		desc += " (due " + i.Notification.DueAt.Local().Format("Jan 2 15:04") + ")"
	}
	if i.Notification.Completed {
		desc += " ✓"
	}
	return desc
}

// FilterValue returns the text the list's fuzzy filter matches on.
func (i Item) FilterValue() string {
	return i.Notification.Title + " " + i.Notification.Message
}

// age renders a compact relative timestamp for the status line.
func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
