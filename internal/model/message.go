package model

// MessageKind identifies a frame pushed over the stream connection.
type MessageKind string

const (
	MessageNotificationPushed MessageKind = "notification-pushed"
	MessageNotificationRead   MessageKind = "notification-read"
	MessageUnreadCountChanged MessageKind = "unread-count-changed"
	MessageConnectionAck      MessageKind = "connection-ack"
	MessageHeartbeat          MessageKind = "heartbeat"
	MessageError              MessageKind = "error"
)

// knownKinds is the closed set of frame kinds the transport accepts.
var knownKinds = map[MessageKind]bool{
	MessageNotificationPushed: true,
	MessageNotificationRead:   true,
	MessageUnreadCountChanged: true,
	MessageConnectionAck:      true,
	MessageHeartbeat:          true,
	MessageError:              true,
}

// Valid reports whether k is one of the known frame kinds.
func (k MessageKind) Valid() bool {
	return knownKinds[k]
}

// StreamMessage is the decoded form of a single pushed frame. Only the
// fields relevant to the frame's kind are populated.
type StreamMessage struct {
	// Kind discriminates the payload.
	Kind MessageKind `json:"type"`

	// Notification carries the full record for notification-pushed frames.
	Notification *Notification `json:"notification,omitempty"`

	// IDs lists affected notification ids for notification-read frames.
	IDs []string `json:"ids,omitempty"`

	// UnreadCount carries the new total for unread-count-changed frames.
	UnreadCount *int `json:"unread_count,omitempty"`

	// Message holds human-readable text for error frames.
	Message string `json:"message,omitempty"`
}
