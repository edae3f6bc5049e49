// Package client composes the transport, store, activity monitor, and
// cache into one explicitly constructed instance with a
// create → connect → disconnect → dispose lifecycle. Nothing here is a
// package-level singleton; tests build isolated copies.
package client

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/caseflow/notify/internal/activity"
	"github.com/caseflow/notify/internal/api"
	"github.com/caseflow/notify/internal/backoff"
	"github.com/caseflow/notify/internal/cache"
	"github.com/caseflow/notify/internal/credential"
	"github.com/caseflow/notify/internal/model"
	"github.com/caseflow/notify/internal/routes"
	"github.com/caseflow/notify/internal/store"
	"github.com/caseflow/notify/internal/stream"
)

// cacheOpTimeout bounds background cache writes so a wedged disk never
// stalls frame dispatch.
const cacheOpTimeout = 5 * time.Second

// seedLimit is how many cached notifications seed the store at startup.
const seedLimit = 50

// Client is the notification delivery subsystem's entry point.
type Client struct {
	cfg       *model.Config
	store     *store.Store
	transport *stream.Transport
	monitor   *activity.Monitor
	cache     *cache.Cache
	logger    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sub      *activity.Subscription
	seeded   bool
	disposed bool
}

// New builds a client from configuration. The cache may be nil to run
// memory-only; the token source is shared by the REST client and the
// stream transport.
func New(cfg *model.Config, tokens credential.TokenSource, c *cache.Cache, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}

	restAPI := api.NewClient(cfg.API.BaseURL, tokens)
	st := store.New(restAPI, cfg.API.PageSize, logger)

	ctx, cancel := context.WithCancel(context.Background())

	cl := &Client{
		cfg:    cfg,
		store:  st,
		cache:  c,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	policy := backoff.New(
		time.Duration(cfg.Stream.ReconnectBaseMS)*time.Millisecond,
		cfg.Stream.MaxReconnectAttempts,
	)
	cl.transport = stream.New(cfg.Stream.URL, tokens, policy, stream.Hooks{
		OnMessage:    cl.handleMessage,
		OnConnect:    cl.handleConnect,
		OnDisconnect: cl.handleDisconnect,
		OnError:      cl.handleError,
		OnState:      st.SetConnState,
	}, logger)

	cl.monitor = activity.New(
		cl.transport,
		time.Duration(cfg.Stream.IdleTimeoutSec)*time.Second,
		logger,
	)

	return cl
}

// Store exposes the notification state for the UI to render from.
func (c *Client) Store() *store.Store {
	return c.store
}

// Connect seeds the store from the cache, opens the push connection,
// and arms the activity monitor. Safe to call repeatedly.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if !c.seeded {
		c.seeded = true
		c.mu.Unlock()
		c.seedFromCache()
		c.mu.Lock()
	}
	if c.sub == nil {
		c.sub = c.monitor.Start()
	}
	c.mu.Unlock()

	c.transport.Connect()
}

// Disconnect tears down the push connection and the activity monitor's
// subscription, which must never outlive it.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	c.transport.Disconnect()
}

// Dispose releases everything: connection, dispatch loop, in-flight
// work, and the cache handle. The client cannot be reused afterwards.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	c.Disconnect()
	c.transport.Dispose()
	c.cancel()
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			c.logger.Printf("client: closing cache: %v", err)
		}
	}
}

// Signal forwards a user-activity event to the monitor. The host UI
// calls this on every interaction.
func (c *Client) Signal() {
	c.monitor.Signal()
}

// Open marks a notification read and resolves its destination. The
// route is nil for categories with no navigable target.
func (c *Client) Open(ctx context.Context, n model.Notification) (*routes.Route, error) {
	err := c.store.MarkRead(ctx, n.ID)
	c.cacheMarkRead(n.ID)
	return routes.Resolve(&n), err
}

// Dismiss evicts a notification from the store and the cache.
func (c *Client) Dismiss(id string) {
	c.store.Dismiss(id)
	if c.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, cacheOpTimeout)
	defer cancel()
	if err := c.cache.Delete(ctx, id); err != nil {
		c.logger.Printf("client: evicting cached notification: %v", err)
	}
}

// Refresh refetches the first page and the badge snapshot.
func (c *Client) Refresh(ctx context.Context) {
	if err := c.store.FetchPage(ctx, 1, true); err != nil {
		return
	}
	if err := c.store.FetchBadge(ctx); err != nil {
		return
	}
	c.persistSnapshot()
}

// seedFromCache loads the last-known feed so the UI renders something
// before the first fetch resolves.
func (c *Client) seedFromCache() {
	if c.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, cacheOpTimeout)
	defer cancel()

	items, err := c.cache.Recent(ctx, seedLimit)
	if err != nil {
		c.logger.Printf("client: seeding from cache: %v", err)
		return
	}
	if len(items) > 0 {
		c.store.Seed(items)
	}
}

// handleConnect refreshes state after every successful open; pushed
// frames only carry changes made while connected.
func (c *Client) handleConnect() {
	go c.Refresh(c.ctx)
}

// handleDisconnect logs the settled state; reconnection is already the
// transport's business.
func (c *Client) handleDisconnect(state model.ConnState) {
	c.logger.Printf("client: stream disconnected (%s)", state)
}

// handleError observes transport errors. They are invisible to the
// user; the transport reconnects in the background.
func (c *Client) handleError(err error) {
	c.logger.Printf("client: stream error: %v", err)
}

// handleMessage routes one pushed frame into the store and cache.
// Invoked from the transport's dispatch loop, in arrival order.
func (c *Client) handleMessage(msg model.StreamMessage) {
	switch msg.Kind {
	case model.MessageNotificationPushed:
		if msg.Notification == nil {
			c.logger.Printf("client: notification-pushed frame without payload")
			return
		}
		c.store.IngestPushed(*msg.Notification)
		c.cacheUpsert(*msg.Notification)

	case model.MessageNotificationRead:
		if len(msg.IDs) == 0 {
			return
		}
		c.store.ApplyReadEvent(msg.IDs)
		c.cacheMarkRead(msg.IDs...)

	case model.MessageUnreadCountChanged:
		if msg.UnreadCount == nil {
			return
		}
		c.store.SetUnreadCount(*msg.UnreadCount)

	case model.MessageConnectionAck:
		c.logger.Printf("client: stream acknowledged")

	case model.MessageHeartbeat:
		// Keepalive only.

	case model.MessageError:
		c.logger.Printf("client: stream error frame: %s", msg.Message)
	}
}

// persistSnapshot mirrors the store's collection into the cache.
func (c *Client) persistSnapshot() {
	if c.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, cacheOpTimeout)
	defer cancel()

	snap := c.store.Snapshot()
	if err := c.cache.Upsert(ctx, snap.Items...); err != nil {
		c.logger.Printf("client: persisting snapshot: %v", err)
	}
}

// cacheUpsert mirrors one notification into the cache.
func (c *Client) cacheUpsert(n model.Notification) {
	if c.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, cacheOpTimeout)
	defer cancel()
	if err := c.cache.Upsert(ctx, n); err != nil {
		c.logger.Printf("client: caching notification: %v", err)
	}
}

// cacheMarkRead mirrors read flips into the cache.
func (c *Client) cacheMarkRead(ids ...string) {
	if c.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, cacheOpTimeout)
	defer cancel()
	if err := c.cache.MarkRead(ctx, ids...); err != nil {
		c.logger.Printf("client: caching read state: %v", err)
	}
}
