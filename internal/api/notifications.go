package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/caseflow/notify/internal/model"
)

// ListResult holds one page of notifications plus pagination metadata.
type ListResult struct {
	Results []model.Notification `json:"results"`
	HasMore bool                 `json:"has_more"`
	Total   int                  `json:"total"`
}

// UpdatePatch is a partial update to a notification's mutable flags.
type UpdatePatch struct {
	Read      *bool `json:"read,omitempty"`
	Completed *bool `json:"completed,omitempty"`
}

// API is the REST capability surface the store consumes. *Client is the
// production implementation; tests substitute fakes.
type API interface {
	// List retrieves one page of notifications matching the filter.
	List(ctx context.Context, filter model.Filter, page, pageSize int) (*ListResult, error)

	// UnreadCount returns the total number of unread notifications.
	UnreadCount(ctx context.Context) (int, error)

	// MarkRead marks a single notification read and returns the
	// server's updated record.
	MarkRead(ctx context.Context, id string) (*model.Notification, error)

	// BulkMarkRead marks the given ids read and returns how many were
	// newly read (already-read ids do not count).
	BulkMarkRead(ctx context.Context, ids []string) (int, error)

	// Update applies a partial update to a notification's flags.
	Update(ctx context.Context, id string, patch UpdatePatch) (*model.Notification, error)
}

// List retrieves one page of notifications matching the filter.
func (c *Client) List(
	ctx context.Context,
	filter model.Filter,
	page, pageSize int,
) (*ListResult, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if filter.Category != nil {
		q.Set("category", string(*filter.Category))
	}
	if filter.Read != "" && filter.Read != model.ReadFilterAll {
		q.Set("read", string(filter.Read))
	}

	var result ListResult
	if err := c.get(ctx, "/notifications?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// unreadCountResponse is the envelope for the unread-count endpoint.
type unreadCountResponse struct {
	Count int `json:"count"`
}

// UnreadCount returns the total number of unread notifications.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var result unreadCountResponse
	if err := c.get(ctx, "/notifications/unread-count", &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// MarkRead marks a single notification read.
func (c *Client) MarkRead(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	path := fmt.Sprintf("/notifications/%s/read", url.PathEscape(id))
	if err := c.post(ctx, path, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// bulkReadRequest and bulkReadResponse frame the bulk-read endpoint.
type bulkReadRequest struct {
	IDs []string `json:"ids"`
}

type bulkReadResponse struct {
	Count int `json:"count"`
}

// BulkMarkRead marks the given ids read. The returned count is the
// number of records the server actually flipped.
func (c *Client) BulkMarkRead(ctx context.Context, ids []string) (int, error) {
	var result bulkReadResponse
	err := c.post(ctx, "/notifications/bulk-read", bulkReadRequest{IDs: ids}, &result)
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

// Update applies a partial update to a notification's flags.
func (c *Client) Update(
	ctx context.Context,
	id string,
	patch UpdatePatch,
) (*model.Notification, error) {
	var n model.Notification
	path := "/notifications/" + url.PathEscape(id)
	if err := c.patch(ctx, path, patch, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
