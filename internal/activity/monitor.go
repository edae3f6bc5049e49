// Package activity turns user-activity signals into suspend and resume
// decisions for the stream connection, so idle sessions stop holding a
// server-side connection without losing the intent to be connected.
package activity

import (
	"log"
	"sync"
	"time"

	"github.com/caseflow/notify/internal/model"
)

// DefaultIdleTimeout is how long without activity before the connection
// is suspended.
const DefaultIdleTimeout = 5 * time.Minute

// signalThrottle caps how often activity signals reset the idle timer.
// High-frequency sources (continuous pointer movement, scroll) would
// otherwise reset it thousands of times a minute.
const signalThrottle = time.Second

// Conn is the slice of the transport the monitor drives.
type Conn interface {
	State() model.ConnState
	Connect()
	Suspend()
}

// Monitor owns the single inactivity timer. Feed it user-activity
// signals with Signal; when the timer expires with the connection Open,
// the connection is suspended, and the next signal reconnects it.
type Monitor struct {
	conn    Conn
	timeout time.Duration
	logger  *log.Logger

	mu        sync.Mutex
	timer     *time.Timer
	lastReset time.Time
	running   bool
}

// New creates a monitor for the given connection. A non-positive
// timeout falls back to DefaultIdleTimeout.
func New(conn Conn, timeout time.Duration, logger *log.Logger) *Monitor {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		conn:    conn,
		timeout: timeout,
		logger:  logger,
	}
}

// Subscription is the scoped handle returned by Start. Stopping it is
// paired with transport teardown so the monitor never outlives a
// disconnect.
type Subscription struct {
	stop func()
	once sync.Once
}

// Stop disarms the monitor. Idempotent.
func (s *Subscription) Stop() {
	s.once.Do(s.stop)
}

// Start arms the idle timer and returns the subscription that disarms
// it. Calling Start on a running monitor returns a handle to the same
// underlying timer.
func (m *Monitor) Start() *Subscription {
	m.mu.Lock()
	if !m.running {
		m.running = true
		m.lastReset = time.Now()
		m.timer = time.AfterFunc(m.timeout, m.expire)
	}
	m.mu.Unlock()

	return &Subscription{stop: m.stopTimer}
}

// Signal records a user-activity event. It resets the idle timer (at
// most once per second of wall time) and, if the connection was
// suspended, immediately reconnects — the only path out of Suspended.
func (m *Monitor) Signal() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	if now.Sub(m.lastReset) >= signalThrottle {
		m.lastReset = now
		if m.timer != nil {
			m.timer.Stop()
		}
		m.timer = time.AfterFunc(m.timeout, m.expire)
	}
	m.mu.Unlock()

	if m.conn.State() == model.ConnSuspended {
		m.logger.Printf("activity: waking suspended connection")
		m.conn.Connect()
	}
}

// expire fires when the idle timer runs out with no intervening signal.
func (m *Monitor) expire() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	// Keep watching while the connection is not open; a reconnect may
	// still be in flight.
	if m.conn.State() != model.ConnOpen {
		m.timer = time.AfterFunc(m.timeout, m.expire)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.logger.Printf("activity: idle for %s, suspending", m.timeout)
	m.conn.Suspend()
}

// stopTimer disarms the monitor and its timer.
func (m *Monitor) stopTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
