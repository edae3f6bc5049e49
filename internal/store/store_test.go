package store

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/caseflow/notify/internal/api"
	"github.com/caseflow/notify/internal/model"
)

// fakeAPI is a scriptable in-memory implementation of the REST surface.
type fakeAPI struct {
	mu          sync.Mutex
	listResults []api.ListResult
	listCalls   []model.Filter
	listPages   []int
	listErr     error
	unreadCount int
	markReadErr error
	bulkCount   int
	bulkErr     error
	markReadIDs []string
	bulkIDs     [][]string
	listDelay   time.Duration
	listFunc    func(filter model.Filter) api.ListResult
}

func (f *fakeAPI) List(ctx context.Context, filter model.Filter, page, pageSize int) (*api.ListResult, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, filter)
	f.listPages = append(f.listPages, page)
	delay := f.listDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listFunc != nil {
		result := f.listFunc(filter)
		return &result, nil
	}
	if len(f.listResults) == 0 {
		return &api.ListResult{}, nil
	}
	result := f.listResults[0]
	if len(f.listResults) > 1 {
		f.listResults = f.listResults[1:]
	}
	return &result, nil
}

func (f *fakeAPI) UnreadCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadCount, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, id string) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadIDs = append(f.markReadIDs, id)
	if f.markReadErr != nil {
		return nil, f.markReadErr
	}
	now := time.Now().UTC()
	return &model.Notification{ID: id, Read: true, ReadAt: &now}, nil
}

func (f *fakeAPI) BulkMarkRead(ctx context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkIDs = append(f.bulkIDs, ids)
	if f.bulkErr != nil {
		return 0, f.bulkErr
	}
	return f.bulkCount, nil
}

func (f *fakeAPI) Update(ctx context.Context, id string, patch api.UpdatePatch) (*model.Notification, error) {
	n := &model.Notification{ID: id}
	if patch.Completed != nil {
		n.Completed = *patch.Completed
	}
	return n, nil
}

func newTestStore(t *testing.T, f *fakeAPI) *Store {
	t.Helper()
	return New(f, 20, log.New(io.Discard, "", 0))
}

func unreadNotification(id string, category model.Category) model.Notification {
	return model.Notification{
		ID:        id,
		Category:  category,
		Title:     "title " + id,
		CreatedAt: time.Now().UTC(),
	}
}

func TestIngestPushedDedup(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})

	n := unreadNotification("7", model.CategoryTaskAssigned)
	s.IngestPushed(n)
	s.IngestPushed(n)

	snap := s.Snapshot()
	if len(snap.Items) != 1 {
		t.Fatalf("collection length = %d after duplicate ingest, want 1", len(snap.Items))
	}
	if snap.Unread != 1 {
		t.Errorf("unread = %d after duplicate ingest, want 1", snap.Unread)
	}
}

func TestIngestPushedUnreadScenario(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})
	s.SetUnreadCount(3)
	s.IngestPushed(unreadNotification("1", model.CategoryReminderDue))
	s.SetUnreadCount(3)

	s.IngestPushed(unreadNotification("7", model.CategoryTaskAssigned))

	snap := s.Snapshot()
	if snap.Unread != 4 {
		t.Errorf("unread = %d, want 4", snap.Unread)
	}
	if snap.Items[0].ID != "7" {
		t.Errorf("head of collection = %s, want 7", snap.Items[0].ID)
	}
}

func TestIngestPushedReadRecordDoesNotIncrement(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})

	now := time.Now().UTC()
	s.IngestPushed(model.Notification{ID: "9", Read: true, ReadAt: &now})

	if got := s.Unread(); got != 0 {
		t.Errorf("unread = %d after ingesting a read record, want 0", got)
	}
}

func TestMarkReadDecrementsByOne(t *testing.T) {
	f := &fakeAPI{}
	s := newTestStore(t, f)
	s.IngestPushed(unreadNotification("1", model.CategoryTaskAssigned))
	s.IngestPushed(unreadNotification("2", model.CategoryTaskAssigned))

	if err := s.MarkRead(context.Background(), "1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	snap := s.Snapshot()
	if snap.Unread != 1 {
		t.Errorf("unread = %d, want 1", snap.Unread)
	}
	for _, n := range snap.Items {
		if n.ID == "1" {
			if !n.Read || n.ReadAt == nil {
				t.Errorf("record 1 not flipped: read=%v read_at=%v", n.Read, n.ReadAt)
			}
		}
	}
	if len(f.markReadIDs) != 1 || f.markReadIDs[0] != "1" {
		t.Errorf("REST confirmation calls = %v, want [1]", f.markReadIDs)
	}
}

func TestMarkReadFailureKeepsOptimisticFlip(t *testing.T) {
	restErr := &api.APIError{StatusCode: 500, Message: "boom"}
	f := &fakeAPI{markReadErr: restErr}
	s := newTestStore(t, f)
	s.IngestPushed(unreadNotification("1", model.CategoryTaskAssigned))

	err := s.MarkRead(context.Background(), "1")
	if err == nil {
		t.Fatal("MarkRead returned nil, want error")
	}

	snap := s.Snapshot()
	if !snap.Items[0].Read {
		t.Error("optimistic flip was rolled back; it must be kept")
	}
	if snap.Err == nil {
		t.Error("store did not surface the REST error")
	}
	var apiErr *api.APIError
	if !errors.As(snap.Err, &apiErr) {
		t.Errorf("surfaced error type %T, want *api.APIError", snap.Err)
	}
}

func TestUnreadNeverNegative(t *testing.T) {
	f := &fakeAPI{}
	s := newTestStore(t, f)
	s.IngestPushed(unreadNotification("1", model.CategoryTaskAssigned))

	s.ApplyReadEvent([]string{"1"})
	s.ApplyReadEvent([]string{"1"})
	if err := s.MarkRead(context.Background(), "1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	s.ApplyReadEvent([]string{"missing"})

	if got := s.Unread(); got != 0 {
		t.Errorf("unread = %d, want 0 (floor invariant)", got)
	}
}

func TestBulkMarkReadServerCountScenario(t *testing.T) {
	// 7 already read, 8 unread; server reports one newly-read record.
	f := &fakeAPI{bulkCount: 1}
	s := newTestStore(t, f)
	now := time.Now().UTC()
	s.IngestPushed(model.Notification{ID: "7", Read: true, ReadAt: &now})
	s.IngestPushed(unreadNotification("8", model.CategoryTaskAssigned))
	s.SetUnreadCount(5)

	if err := s.BulkMarkRead(context.Background(), []string{"7", "8"}); err != nil {
		t.Fatalf("BulkMarkRead: %v", err)
	}

	if got := s.Unread(); got != 4 {
		t.Errorf("unread = %d, want 4 (decrement by server count, not len(ids))", got)
	}
}

func TestBulkMarkReadReconcilesExtraServerFlips(t *testing.T) {
	// The server flips a record this page never held.
	f := &fakeAPI{bulkCount: 2}
	s := newTestStore(t, f)
	s.IngestPushed(unreadNotification("8", model.CategoryTaskAssigned))
	s.SetUnreadCount(5)

	if err := s.BulkMarkRead(context.Background(), []string{"8", "offpage"}); err != nil {
		t.Fatalf("BulkMarkRead: %v", err)
	}

	if got := s.Unread(); got != 3 {
		t.Errorf("unread = %d, want 3", got)
	}
}

func TestApplyReadEventCrossSession(t *testing.T) {
	f := &fakeAPI{}
	s := newTestStore(t, f)
	s.IngestPushed(unreadNotification("1", model.CategoryTaskAssigned))
	s.IngestPushed(unreadNotification("2", model.CategoryReminderDue))

	s.ApplyReadEvent([]string{"1", "2"})

	snap := s.Snapshot()
	if snap.Unread != 0 {
		t.Errorf("unread = %d, want 0", snap.Unread)
	}
	for _, n := range snap.Items {
		if !n.Read || n.ReadAt == nil {
			t.Errorf("record %s not marked read locally", n.ID)
		}
	}
	if len(f.markReadIDs) != 0 || len(f.bulkIDs) != 0 {
		t.Error("cross-session sync must not issue REST calls")
	}
}

func TestFetchPageResetReplaces(t *testing.T) {
	f := &fakeAPI{
		listResults: []api.ListResult{
			{Results: []model.Notification{unreadNotification("1", model.CategoryTaskAssigned)}, HasMore: true},
			{Results: []model.Notification{unreadNotification("2", model.CategoryReminderDue)}, HasMore: false},
		},
	}
	s := newTestStore(t, f)

	if err := s.FetchPage(context.Background(), 1, true); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if err := s.FetchPage(context.Background(), 1, true); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].ID != "2" {
		t.Errorf("collection = %v, want just record 2 after reset", snap.Items)
	}
	if snap.HasMore {
		t.Error("hasMore = true, want false from the last response")
	}
}

func TestFetchPageAppendDedups(t *testing.T) {
	f := &fakeAPI{
		listResults: []api.ListResult{
			{Results: []model.Notification{
				unreadNotification("1", model.CategoryTaskAssigned),
				unreadNotification("2", model.CategoryTaskAssigned),
			}, HasMore: true},
			{Results: []model.Notification{
				unreadNotification("2", model.CategoryTaskAssigned),
				unreadNotification("3", model.CategoryTaskAssigned),
			}, HasMore: false},
		},
	}
	s := newTestStore(t, f)

	if err := s.FetchPage(context.Background(), 1, true); err != nil {
		t.Fatalf("FetchPage(1): %v", err)
	}
	if err := s.FetchPage(context.Background(), 2, false); err != nil {
		t.Fatalf("FetchPage(2): %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Items) != 3 {
		t.Fatalf("collection length = %d, want 3 (page overlap deduplicated)", len(snap.Items))
	}
	if snap.Page != 2 {
		t.Errorf("page = %d, want 2", snap.Page)
	}
}

func TestSetTypeFilterResetsCursorAndRefetches(t *testing.T) {
	f := &fakeAPI{
		listResults: []api.ListResult{
			{Results: []model.Notification{unreadNotification("1", model.CategoryTaskAssigned)}, HasMore: true},
			{Results: []model.Notification{unreadNotification("9", model.CategoryReminderDue)}, HasMore: false},
		},
	}
	s := newTestStore(t, f)
	if err := s.FetchPage(context.Background(), 1, true); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}

	category := model.CategoryReminderDue
	if err := s.SetTypeFilter(context.Background(), &category); err != nil {
		t.Fatalf("SetTypeFilter: %v", err)
	}

	snap := s.Snapshot()
	if snap.Page != 1 {
		t.Errorf("page = %d, want reset to 1", snap.Page)
	}
	if len(snap.Items) != 1 || snap.Items[0].ID != "9" {
		t.Errorf("collection = %v, want replaced with record 9", snap.Items)
	}
	last := f.listCalls[len(f.listCalls)-1]
	if last.Category == nil || *last.Category != category {
		t.Errorf("refetch filter = %+v, want category %s", last, category)
	}
	if f.listPages[len(f.listPages)-1] != 1 {
		t.Errorf("refetch page = %d, want 1", f.listPages[len(f.listPages)-1])
	}
}

func TestFilterChangeDiscardsStaleFetch(t *testing.T) {
	f := &fakeAPI{
		listDelay: 50 * time.Millisecond,
		listFunc: func(filter model.Filter) api.ListResult {
			if filter.Category == nil {
				return api.ListResult{Results: []model.Notification{
					unreadNotification("stale", model.CategoryTaskAssigned),
				}}
			}
			return api.ListResult{Results: []model.Notification{
				unreadNotification("fresh", model.CategoryReminderDue),
			}}
		},
	}
	s := newTestStore(t, f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Slow fetch under the old filter; the filter change below
		// cancels it before it can apply.
		_ = s.FetchPage(context.Background(), 1, true)
	}()

	time.Sleep(10 * time.Millisecond)
	category := model.CategoryReminderDue
	if err := s.SetTypeFilter(context.Background(), &category); err != nil {
		t.Fatalf("SetTypeFilter: %v", err)
	}
	<-done

	snap := s.Snapshot()
	for _, n := range snap.Items {
		if n.ID == "stale" {
			t.Error("stale response applied after filter change")
		}
	}
}

func TestFetchBadgeSeedsCounts(t *testing.T) {
	f := &fakeAPI{
		unreadCount: 7,
		listResults: []api.ListResult{
			{Results: []model.Notification{
				unreadNotification("1", model.CategoryTaskAssigned),
				unreadNotification("2", model.CategoryTaskAssigned),
				unreadNotification("3", model.CategoryReminderDue),
			}},
		},
	}
	s := newTestStore(t, f)

	if err := s.FetchBadge(context.Background()); err != nil {
		t.Fatalf("FetchBadge: %v", err)
	}

	snap := s.Snapshot()
	if snap.Unread != 7 {
		t.Errorf("unread = %d, want 7 from the count endpoint", snap.Unread)
	}
	if snap.Badges[model.CategoryTaskAssigned] != 2 {
		t.Errorf("task-assigned badge = %d, want 2", snap.Badges[model.CategoryTaskAssigned])
	}
	if snap.Badges[model.CategoryReminderDue] != 1 {
		t.Errorf("reminder-due badge = %d, want 1", snap.Badges[model.CategoryReminderDue])
	}
	// The badge fetch must be unread-only and filter-independent.
	last := f.listCalls[len(f.listCalls)-1]
	if last.Read != model.ReadFilterUnread {
		t.Errorf("badge fetch read filter = %q, want unread", last.Read)
	}
	if last.Category != nil {
		t.Error("badge fetch must ignore the view's category filter")
	}
}

func TestDismissEvicts(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})
	s.IngestPushed(unreadNotification("1", model.CategoryTaskAssigned))

	s.Dismiss("1")

	snap := s.Snapshot()
	if len(snap.Items) != 0 {
		t.Errorf("collection length = %d after dismiss, want 0", len(snap.Items))
	}
	if snap.Unread != 0 {
		t.Errorf("unread = %d after dismissing an unread record, want 0", snap.Unread)
	}

	// A dismissed id can be pushed again.
	s.IngestPushed(unreadNotification("1", model.CategoryTaskAssigned))
	if got := len(s.Snapshot().Items); got != 1 {
		t.Errorf("collection length = %d after re-ingest, want 1", got)
	}
}

func TestConnStateMirror(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})

	transitions := []model.ConnState{
		model.ConnConnecting,
		model.ConnOpen,
		model.ConnSuspended,
		model.ConnConnecting,
		model.ConnOpen,
		model.ConnClosed,
	}
	for _, state := range transitions {
		s.SetConnState(state)
		if got := s.ConnState(); got != state {
			t.Errorf("mirror = %s, want %s", got, state)
		}
	}
}

func TestSetUnreadCountFloor(t *testing.T) {
	s := newTestStore(t, &fakeAPI{})
	s.SetUnreadCount(-3)
	if got := s.Unread(); got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}
