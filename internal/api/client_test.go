package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/caseflow/notify/internal/credential"
	"github.com/caseflow/notify/internal/model"
)

// newTestClient starts an httptest server backed by handler and returns
// a client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, credential.StaticToken("tok-1"))
}

func TestListSendsFilterParams(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(ListResult{
			Results: []model.Notification{{ID: "1"}},
			HasMore: true,
			Total:   41,
		})
	})

	cat := model.CategoryReminderDue
	filter := model.Filter{Category: &cat, Read: model.ReadFilterUnread}
	result, err := c.List(context.Background(), filter, 2, 25)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if gotPath != "/notifications" {
		t.Errorf("path = %s, want /notifications", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", gotAuth)
	}
	want := map[string]string{
		"page":      "2",
		"page_size": "25",
		"category":  "reminder-due",
		"read":      "unread",
	}
	for key, value := range want {
		if got := gotQuery[key]; len(got) != 1 || got[0] != value {
			t.Errorf("query %s = %v, want %s", key, got, value)
		}
	}
	if len(result.Results) != 1 || !result.HasMore || result.Total != 41 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestListOmitsDefaultFilterParams(t *testing.T) {
	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(ListResult{})
	})

	if _, err := c.List(context.Background(), model.DefaultFilter(), 1, 20); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, ok := gotQuery["category"]; ok {
		t.Error("category param sent for the default filter")
	}
	if _, ok := gotQuery["read"]; ok {
		t.Error("read param sent for the default filter")
	}
}

func TestUnauthorizedReturnsAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
	})

	_, err := c.UnreadCount(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("got %v, want an AuthError", err)
	}
}

func TestMissingTokenReturnsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent despite missing credential")
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, credential.StaticToken(""))
	_, err := c.UnreadCount(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("got %v, want an AuthError", err)
	}
}

func TestServerErrorReturnsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "database unavailable"})
	})

	_, err := c.MarkRead(context.Background(), "1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want an APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", apiErr.StatusCode)
	}
	if apiErr.Message != "database unavailable" {
		t.Errorf("message = %q, want the server's error string", apiErr.Message)
	}
}

func TestRateLimitRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		if n <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(unreadCountResponse{Count: 4})
	})

	count, err := c.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("server saw %d attempts, want 3", attempts)
	}
}

func TestBulkMarkReadSendsIDsAndReturnsCount(t *testing.T) {
	var gotBody bulkReadRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/notifications/bulk-read" {
			t.Errorf("got %s %s, want POST /notifications/bulk-read", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(bulkReadResponse{Count: 2})
	})

	count, err := c.BulkMarkRead(context.Background(), []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("BulkMarkRead: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if len(gotBody.IDs) != 3 {
		t.Errorf("server received ids %v, want 3", gotBody.IDs)
	}
}

func TestUpdateSendsPartialPatch(t *testing.T) {
	var gotRaw map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/notifications/n-1" {
			t.Errorf("got %s %s, want PATCH /notifications/n-1", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRaw); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(model.Notification{ID: "n-1", Completed: true})
	})

	completed := true
	n, err := c.Update(context.Background(), "n-1", UpdatePatch{Completed: &completed})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !n.Completed {
		t.Errorf("returned record not completed: %+v", n)
	}
	if _, ok := gotRaw["read"]; ok {
		t.Error("unset read flag was serialized into the patch")
	}
	if got, ok := gotRaw["completed"]; !ok || got != true {
		t.Errorf("patch body = %v, want completed=true only", gotRaw)
	}
}
