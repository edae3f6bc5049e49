// Package stream owns the persistent push connection to the caseflow
// backend. It maintains at most one open websocket per transport,
// decodes pushed frames into typed messages, and delivers every hook
// invocation through a single internal event queue with one consumer,
// so arrival order is preserved across reconnects.
package stream

import (
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/caseflow/notify/internal/backoff"
	"github.com/caseflow/notify/internal/credential"
	"github.com/caseflow/notify/internal/model"
)

// eventQueueSize buffers events between producers (socket reader, retry
// timer, API calls) and the dispatch loop. Producers block when full
// rather than dropping, preserving order.
const eventQueueSize = 64

// Hooks are the transport's side-effect callbacks. All of them are
// optional and all are invoked from the dispatch goroutine in emission
// order; a panic in a hook is recovered and logged so one bad handler
// cannot take down the delivery loop.
type Hooks struct {
	// OnMessage receives every valid decoded frame in arrival order.
	OnMessage func(model.StreamMessage)

	// OnConnect fires once per successful open.
	OnConnect func()

	// OnDisconnect fires once per close, with the state the transport
	// settled in (Connecting while a retry is pending, Suspended,
	// Closed, or Idle when retries are exhausted).
	OnDisconnect func(model.ConnState)

	// OnError fires for transport-level failures (dial errors,
	// unexpected closes). Never for malformed frames, which are only
	// logged and dropped.
	OnError func(error)

	// OnState observes every state transition, in order. The store's
	// connection-state mirror hangs off this.
	OnState func(model.ConnState)
}

// eventKind discriminates entries on the internal queue.
type eventKind int

const (
	evMessage eventKind = iota
	evConnect
	evDisconnect
	evError
	evState
)

type event struct {
	kind  eventKind
	msg   model.StreamMessage
	state model.ConnState
	err   error
}

// Transport manages one websocket connection and its reconnect
// lifecycle. Construct with New, then Connect/Suspend/Disconnect;
// Dispose releases the dispatch goroutine.
type Transport struct {
	url      string
	tokens   credential.TokenSource
	policy   backoff.Policy
	hooks    Hooks
	logger   *log.Logger
	clientID string

	events   chan event
	disposed chan struct{}

	mu          sync.Mutex
	state       model.ConnState
	conn        *websocket.Conn
	attempt     int
	retryTimer  *time.Timer
	intentional bool
	suspending  bool
	disposeOnce sync.Once
}

// New creates a transport for the given websocket URL. The token source
// is consulted before every dial; hooks may be partially populated.
func New(wsURL string, tokens credential.TokenSource, policy backoff.Policy, hooks Hooks, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	t := &Transport{
		url:      wsURL,
		tokens:   tokens,
		policy:   policy,
		hooks:    hooks,
		logger:   logger,
		clientID: uuid.New().String(),
		events:   make(chan event, eventQueueSize),
		disposed: make(chan struct{}),
		state:    model.ConnIdle,
	}
	go t.dispatchLoop()
	return t
}

// ClientID returns the per-process connection identifier sent to the
// backend, which uses it to avoid echoing a session's own read events.
func (t *Transport) ClientID() string {
	return t.clientID
}

// State returns the current connection state.
func (t *Transport) State() model.ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect opens the push connection. It is idempotent: a no-op while
// already Connecting or Open. A missing credential is an expected
// condition before login, so it is logged and leaves the state at Idle
// rather than returning an error.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.state == model.ConnConnecting || t.state == model.ConnOpen {
		t.mu.Unlock()
		return
	}
	t.cancelRetryLocked()

	token, err := t.tokens.Token()
	if err != nil {
		changed := t.setStateLocked(model.ConnIdle)
		t.mu.Unlock()
		t.logger.Printf("stream: no credential, staying idle: %v", err)
		if changed {
			t.emit(event{kind: evState, state: model.ConnIdle})
		}
		return
	}

	t.intentional = false
	t.suspending = false
	t.setStateLocked(model.ConnConnecting)
	t.mu.Unlock()

	t.emit(event{kind: evState, state: model.ConnConnecting})
	go t.dial(token)
}

// Suspend closes the connection locally because the user went idle.
// Unlike Disconnect it keeps the intent to be connected: the activity
// monitor calls Connect again on the next activity signal. A suspension
// never consumes a reconnect attempt.
func (t *Transport) Suspend() {
	t.mu.Lock()
	if t.state != model.ConnOpen {
		t.mu.Unlock()
		return
	}
	t.suspending = true
	conn := t.conn
	t.setStateLocked(model.ConnSuspended)
	t.mu.Unlock()

	t.emit(event{kind: evState, state: model.ConnSuspended})
	if conn != nil {
		conn.Close()
	}
	t.logger.Printf("stream: suspended after inactivity")
}

// Disconnect tears the connection down intentionally: it cancels any
// pending retry and no reconnect is attempted. Idempotent.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if t.state == model.ConnClosed {
		t.mu.Unlock()
		return
	}
	t.intentional = true
	t.cancelRetryLocked()
	conn := t.conn
	t.conn = nil
	t.setStateLocked(model.ConnClosed)
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	t.emit(event{kind: evState, state: model.ConnClosed})
	t.emit(event{kind: evDisconnect, state: model.ConnClosed})
}

// Dispose stops the dispatch goroutine. The transport cannot be reused
// afterwards.
func (t *Transport) Dispose() {
	t.Disconnect()
	t.disposeOnce.Do(func() {
		close(t.disposed)
	})
}

// dial performs the websocket handshake. The credential travels as a
// query parameter because the backend's push endpoint accepts it only
// as a connection parameter, not a header.
func (t *Transport) dial(token string) {
	target, err := url.Parse(t.url)
	if err != nil {
		t.logger.Printf("stream: bad stream url %q: %v", t.url, err)
		t.emit(event{kind: evError, err: err})
		t.handleFailure(err)
		return
	}
	q := target.Query()
	q.Set("token", token)
	q.Set("client_id", t.clientID)
	target.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	if err != nil {
		t.logger.Printf("stream: dial failed: %v", err)
		t.emit(event{kind: evError, err: err})
		t.handleFailure(err)
		return
	}

	t.mu.Lock()
	if t.intentional {
		// Disconnect raced the handshake; drop the fresh connection.
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.attempt = 0
	t.setStateLocked(model.ConnOpen)
	t.mu.Unlock()

	t.emit(event{kind: evState, state: model.ConnOpen})
	t.emit(event{kind: evConnect})

	go t.readLoop(conn)
}

// readLoop pulls frames off one connection until it closes, then hands
// the close to handleClose. Unknown or malformed payloads are dropped
// with a warning; they never surface past the transport.
func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClose(conn, err)
			return
		}

		var msg model.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Printf("stream: dropping malformed frame: %v", err)
			continue
		}
		if !msg.Kind.Valid() {
			t.logger.Printf("stream: dropping frame with unknown kind %q", msg.Kind)
			continue
		}

		t.emit(event{kind: evMessage, msg: msg})
	}
}

// dispatchLoop is the single consumer of the event queue. Running every
// hook here, on one goroutine, is what makes the in-order delivery
// guarantee hold regardless of reconnects.
func (t *Transport) dispatchLoop() {
	for {
		select {
		case ev := <-t.events:
			t.safeHook(func() { t.invoke(ev) })
		case <-t.disposed:
			return
		}
	}
}

// invoke routes one queued event to its hook.
func (t *Transport) invoke(ev event) {
	switch ev.kind {
	case evMessage:
		if t.hooks.OnMessage != nil {
			t.hooks.OnMessage(ev.msg)
		}
	case evConnect:
		if t.hooks.OnConnect != nil {
			t.hooks.OnConnect()
		}
	case evDisconnect:
		if t.hooks.OnDisconnect != nil {
			t.hooks.OnDisconnect(ev.state)
		}
	case evError:
		if t.hooks.OnError != nil {
			t.hooks.OnError(ev.err)
		}
	case evState:
		if t.hooks.OnState != nil {
			t.hooks.OnState(ev.state)
		}
	}
}

// emit queues an event for the dispatch loop without blocking forever
// on a disposed transport.
func (t *Transport) emit(ev event) {
	select {
	case t.events <- ev:
	case <-t.disposed:
	}
}

// handleClose runs after a connection's read loop ends. Intentional
// closes (Disconnect, Suspend) are already settled; anything else is
// unexpected and goes through the reconnect policy.
func (t *Transport) handleClose(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		// A close from a connection that was already replaced.
		t.mu.Unlock()
		return
	}
	t.conn = nil

	if t.intentional {
		t.mu.Unlock()
		return
	}
	if t.suspending {
		t.suspending = false
		t.mu.Unlock()
		t.emit(event{kind: evDisconnect, state: model.ConnSuspended})
		return
	}
	t.mu.Unlock()

	t.emit(event{kind: evError, err: err})
	t.handleFailure(err)
}

// handleFailure schedules a reconnect attempt, or gives up once the
// policy's ceiling is reached.
func (t *Transport) handleFailure(err error) {
	t.mu.Lock()
	if t.intentional {
		t.mu.Unlock()
		return
	}

	t.attempt++
	attempt := t.attempt
	if !t.policy.Allowed(attempt) {
		t.setStateLocked(model.ConnIdle)
		t.mu.Unlock()
		t.logger.Printf("stream: giving up after %d attempts: %v", attempt-1, err)
		t.emit(event{kind: evState, state: model.ConnIdle})
		t.emit(event{kind: evDisconnect, state: model.ConnIdle})
		return
	}

	delay := t.policy.Delay(attempt)
	changed := t.setStateLocked(model.ConnConnecting)
	t.retryTimer = time.AfterFunc(delay, t.retryDial)
	t.mu.Unlock()

	t.logger.Printf("stream: reconnect attempt %d in %s", attempt, delay)
	if changed {
		t.emit(event{kind: evState, state: model.ConnConnecting})
	}
	t.emit(event{kind: evDisconnect, state: model.ConnConnecting})
}

// retryDial fires from the backoff timer with a freshly read token.
func (t *Transport) retryDial() {
	t.mu.Lock()
	if t.intentional || t.state != model.ConnConnecting {
		t.mu.Unlock()
		return
	}
	token, err := t.tokens.Token()
	if err != nil {
		changed := t.setStateLocked(model.ConnIdle)
		t.mu.Unlock()
		t.logger.Printf("stream: credential gone during reconnect: %v", err)
		if changed {
			t.emit(event{kind: evState, state: model.ConnIdle})
		}
		return
	}
	t.mu.Unlock()

	t.dial(token)
}

// cancelRetryLocked stops a pending reconnect timer. Caller holds mu.
func (t *Transport) cancelRetryLocked() {
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
}

// setStateLocked records a transition, reporting whether it changed.
// Caller holds mu and emits the evState event after unlocking.
func (t *Transport) setStateLocked(s model.ConnState) bool {
	if t.state == s {
		return false
	}
	t.state = s
	return true
}

// safeHook invokes fn, recovering a panic so a bad handler cannot break
// the dispatch loop.
func (t *Transport) safeHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Printf("stream: hook panicked: %v", r)
		}
	}()
	fn()
}
