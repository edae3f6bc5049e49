package model

// ConnState is the lifecycle state of the stream connection. It is owned
// by the transport; the store only mirrors the transitions it reports.
type ConnState int

const (
	ConnIdle ConnState = iota
	ConnConnecting
	ConnOpen
	ConnSuspended
	ConnClosed
)

// String returns the lowercase state name.
func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnSuspended:
		return "suspended"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}
