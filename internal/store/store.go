// Package store is the single authoritative in-memory state for
// notifications: the ordered collection, unread count, filters,
// pagination cursor, and a read-only mirror of the stream connection
// state. Every read and write by the UI goes through here.
package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/caseflow/notify/internal/api"
	"github.com/caseflow/notify/internal/model"
)

// badgePageSize is the page size for the unread-only badge snapshot.
const badgePageSize = 200

// Snapshot is a consistent copy of the store's state for rendering.
type Snapshot struct {
	Items     []model.Notification
	Unread    int
	Badges    map[model.Category]int
	ConnState model.ConnState
	Filter    model.Filter
	Page      int
	HasMore   bool
	Err       error
}

// Store reconciles REST fetches with pushed events and applies user
// actions. The collection is exclusively owned here; the transport and
// UI never mutate it directly.
type Store struct {
	api      api.API
	pageSize int
	logger   *log.Logger

	mu        sync.Mutex
	items     []model.Notification
	present   map[string]bool
	unread    int
	badges    map[model.Category]int
	filter    model.Filter
	filterGen int
	page      int
	hasMore   bool
	connState model.ConnState
	lastErr   error

	fetchCancel context.CancelFunc
	onChange    func()
}

// New creates an empty store backed by the given REST capability.
func New(restAPI api.API, pageSize int, logger *log.Logger) *Store {
	if pageSize <= 0 {
		pageSize = 20
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		api:      restAPI,
		pageSize: pageSize,
		logger:   logger,
		present:  make(map[string]bool),
		badges:   make(map[model.Category]int),
		filter:   model.DefaultFilter(),
		page:     1,
	}
}

// SetOnChange registers a callback invoked after every state mutation,
// outside the store's lock. The UI uses it to schedule a re-render.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// notify invokes the change callback, if any.
func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.Notification, len(s.items))
	copy(items, s.items)
	badges := make(map[model.Category]int, len(s.badges))
	for c, n := range s.badges {
		badges[c] = n
	}
	return Snapshot{
		Items:     items,
		Unread:    s.unread,
		Badges:    badges,
		ConnState: s.connState,
		Filter:    s.filter,
		Page:      s.page,
		HasMore:   s.hasMore,
		Err:       s.lastErr,
	}
}

// Unread returns the current unread count.
func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Seed loads a previously cached collection into an empty store so the
// UI has something to render before the first fetch lands. It does not
// touch the unread count; the badge snapshot owns that.
func (s *Store) Seed(items []model.Notification) {
	s.mu.Lock()
	if len(s.items) == 0 {
		for _, n := range items {
			if s.present[n.ID] {
				continue
			}
			s.present[n.ID] = true
			s.items = append(s.items, n)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// FetchPage retrieves one page of notifications with the current
// filters. With reset it replaces the collection, otherwise it appends,
// deduplicating by id. Overlapping fetches are allowed; the last
// response to resolve wins. A response fetched under a since-changed
// filter is discarded.
func (s *Store) FetchPage(ctx context.Context, page int, reset bool) error {
	s.mu.Lock()
	filter := s.filter
	gen := s.filterGen
	ctx, cancel := context.WithCancel(ctx)
	s.fetchCancel = cancel
	s.mu.Unlock()
	defer cancel()

	result, err := s.api.List(ctx, filter, page, s.pageSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	if gen != s.filterGen {
		// Filter changed while this fetch was in flight.
		s.mu.Unlock()
		return nil
	}
	if reset {
		s.items = s.items[:0]
		s.present = make(map[string]bool)
	}
	for _, n := range result.Results {
		if s.present[n.ID] {
			continue
		}
		s.present[n.ID] = true
		s.items = append(s.items, n)
	}
	s.page = page
	s.hasMore = result.HasMore
	s.lastErr = nil
	s.mu.Unlock()

	s.notify()
	return nil
}

// FetchBadge seeds the unread count and per-category badge counts from
// an unread-only snapshot, independent of the main filtered view.
func (s *Store) FetchBadge(ctx context.Context) error {
	count, err := s.api.UnreadCount(ctx)
	if err != nil {
		s.setErr(err)
		return err
	}

	unreadOnly := model.Filter{Read: model.ReadFilterUnread}
	result, err := s.api.List(ctx, unreadOnly, 1, badgePageSize)
	if err != nil {
		s.setErr(err)
		return err
	}

	badges := make(map[model.Category]int)
	for _, n := range result.Results {
		badges[n.Category]++
	}

	s.mu.Lock()
	s.unread = count
	if s.unread < 0 {
		s.unread = 0
	}
	s.badges = badges
	s.mu.Unlock()

	s.notify()
	return nil
}

// MarkRead optimistically flips a notification to read and confirms via
// REST. The unread count decrements by exactly one, floored at zero.
// On a failed confirmation the local flip is kept and the error is
// surfaced; the next fetch reconciles.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	now := time.Now().UTC()

	s.mu.Lock()
	flipped := false
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if !s.items[i].Read {
			s.items[i].Read = true
			s.items[i].ReadAt = &now
			flipped = true
		}
		break
	}
	if flipped {
		s.decrementUnreadLocked(1)
		if c := s.categoryOfLocked(id); c != "" {
			s.decrementBadgeLocked(c, 1)
		}
	}
	s.mu.Unlock()
	if flipped {
		s.notify()
	}

	updated, err := s.api.MarkRead(ctx, id)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.replace(updated)
	return nil
}

// BulkMarkRead applies MarkRead semantics to a set of ids. The unread
// count ends up decremented by the server-reported count of newly-read
// records, not by len(ids).
func (s *Store) BulkMarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()

	s.mu.Lock()
	locallyFlipped := 0
	for _, id := range ids {
		for i := range s.items {
			if s.items[i].ID != id || s.items[i].Read {
				continue
			}
			s.items[i].Read = true
			s.items[i].ReadAt = &now
			s.decrementBadgeLocked(s.items[i].Category, 1)
			locallyFlipped++
		}
	}
	s.decrementUnreadLocked(locallyFlipped)
	s.mu.Unlock()
	if locallyFlipped > 0 {
		s.notify()
	}

	count, err := s.api.BulkMarkRead(ctx, ids)
	if err != nil {
		s.setErr(err)
		return err
	}

	// Reconcile: the server may have flipped records this page never
	// held, or fewer than we flipped locally.
	if diff := count - locallyFlipped; diff != 0 {
		s.mu.Lock()
		s.decrementUnreadLocked(diff)
		s.mu.Unlock()
		s.notify()
	}
	return nil
}

// MarkAllVisibleRead bulk-marks every unread notification currently in
// the collection.
func (s *Store) MarkAllVisibleRead(ctx context.Context) error {
	s.mu.Lock()
	var ids []string
	for i := range s.items {
		if !s.items[i].Read {
			ids = append(ids, s.items[i].ID)
		}
	}
	s.mu.Unlock()

	return s.BulkMarkRead(ctx, ids)
}

// SetCompleted optimistically flips the completed flag and confirms via
// REST, with the same no-rollback policy as MarkRead.
func (s *Store) SetCompleted(ctx context.Context, id string, completed bool) error {
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Completed = completed
			break
		}
	}
	s.mu.Unlock()
	s.notify()

	updated, err := s.api.Update(ctx, id, api.UpdatePatch{Completed: &completed})
	if err != nil {
		s.setErr(err)
		return err
	}

	s.replace(updated)
	return nil
}

// IngestPushed merges a pushed notification into the collection at the
// head. Ingesting an id that already exists is a no-op; the unread
// count increments only for a new unread record.
func (s *Store) IngestPushed(n model.Notification) {
	s.mu.Lock()
	if s.present[n.ID] {
		s.mu.Unlock()
		return
	}
	s.present[n.ID] = true
	s.items = append([]model.Notification{n}, s.items...)
	if !n.Read {
		s.unread++
		s.badges[n.Category]++
	}
	s.mu.Unlock()

	s.notify()
}

// ApplyReadEvent marks ids read locally without a REST round-trip: the
// authoritative write already happened in the originating session.
func (s *Store) ApplyReadEvent(ids []string) {
	now := time.Now().UTC()

	s.mu.Lock()
	flipped := 0
	for _, id := range ids {
		for i := range s.items {
			if s.items[i].ID != id || s.items[i].Read {
				continue
			}
			s.items[i].Read = true
			s.items[i].ReadAt = &now
			s.decrementBadgeLocked(s.items[i].Category, 1)
			flipped++
		}
	}
	s.decrementUnreadLocked(flipped)
	s.mu.Unlock()

	if flipped > 0 {
		s.notify()
	}
}

// SetUnreadCount applies a pushed unread-count-changed event. It does
// not touch individual records.
func (s *Store) SetUnreadCount(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.unread = n
	s.mu.Unlock()
	s.notify()
}

// Dismiss evicts a notification from the collection. This is the only
// way a record leaves the in-memory state.
func (s *Store) Dismiss(id string) {
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if !s.items[i].Read {
			s.decrementUnreadLocked(1)
			s.decrementBadgeLocked(s.items[i].Category, 1)
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		delete(s.present, id)
		break
	}
	s.mu.Unlock()
	s.notify()
}

// SetTypeFilter changes the category filter (nil for all), resets the
// cursor to page 1, cancels any in-flight fetch, and refetches.
func (s *Store) SetTypeFilter(ctx context.Context, category *model.Category) error {
	s.mu.Lock()
	s.filter.Category = category
	s.invalidateCursorLocked()
	s.mu.Unlock()

	return s.FetchPage(ctx, 1, true)
}

// SetReadFilter changes the read-state filter, resets the cursor to
// page 1, cancels any in-flight fetch, and refetches.
func (s *Store) SetReadFilter(ctx context.Context, read model.ReadFilter) error {
	s.mu.Lock()
	s.filter.Read = read
	s.invalidateCursorLocked()
	s.mu.Unlock()

	return s.FetchPage(ctx, 1, true)
}

// invalidateCursorLocked resets pagination after a filter mutation and
// cancels the in-flight fetch so a stale response cannot apply.
// Caller holds mu.
func (s *Store) invalidateCursorLocked() {
	s.filterGen++
	s.page = 1
	s.hasMore = false
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}
}

// SetConnState records a transition reported by the transport. The
// store never initiates one itself.
func (s *Store) SetConnState(state model.ConnState) {
	s.mu.Lock()
	s.connState = state
	s.mu.Unlock()
	s.notify()
}

// ConnState returns the mirrored connection state.
func (s *Store) ConnState() model.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// Err returns the most recent REST error, or nil.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// setErr records a REST failure for the UI to render inline.
func (s *Store) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Printf("store: %v", err)
	s.notify()
}

// replace swaps in the server's updated copy of a record, keeping
// collection order.
func (s *Store) replace(n *model.Notification) {
	if n == nil {
		return
	}
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == n.ID {
			s.items[i] = *n
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// decrementUnreadLocked lowers the unread count, floored at zero.
// Caller holds mu.
func (s *Store) decrementUnreadLocked(by int) {
	s.unread -= by
	if s.unread < 0 {
		s.unread = 0
	}
}

// decrementBadgeLocked lowers a category badge, floored at zero.
// Caller holds mu.
func (s *Store) decrementBadgeLocked(c model.Category, by int) {
	s.badges[c] -= by
	if s.badges[c] <= 0 {
		delete(s.badges, c)
	}
}

// categoryOfLocked returns the category of the record with the given
// id, or empty. Caller holds mu.
func (s *Store) categoryOfLocked(id string) model.Category {
	for i := range s.items {
		if s.items[i].ID == id {
			return s.items[i].Category
		}
	}
	return ""
}
