package model

// ReadFilter narrows a notification listing by read state.
type ReadFilter string

const (
	ReadFilterAll    ReadFilter = "all"
	ReadFilterUnread ReadFilter = "unread"
	ReadFilterRead   ReadFilter = "read"
)

// Filter is the store's current listing filter. A nil Category means
// all categories.
type Filter struct {
	Category *Category
	Read     ReadFilter
}

// DefaultFilter returns the unfiltered view.
func DefaultFilter() Filter {
	return Filter{Read: ReadFilterAll}
}
