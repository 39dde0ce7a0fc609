// Package stream owns the live-feed transport loop: connect with a resume
// cursor, dispatch events in delivery order, reconnect with exponential
// backoff, and flag staleness from heartbeats. It is the only component
// in the reconciliation engine with I/O side effects.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codedeck/codedeck/internal/timeline"
)

// State is the connection state of the active subscription.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateLagging      State = "lagging"
)

// Envelope is one frame off the push channel: a gateway event or a
// liveness-only heartbeat.
type Envelope struct {
	Event     *timeline.RawEvent
	Heartbeat bool
}

// Subscriber opens the push transport from a resume cursor. The returned
// channel closes on transport failure; the server is trusted to replay
// every event at or after since (the replay is assumed gap-free, which is
// a transport contract this client does not verify).
type Subscriber func(ctx context.Context, since uint64) (<-chan Envelope, error)

// Config holds the manager's timing knobs. Zero values fall back to the
// defaults below.
type Config struct {
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	WatchdogInterval time.Duration
	StaleThreshold   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 800 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = 4 * time.Second
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 20 * time.Second
	}
	return c
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock swaps the wall clock, used by tests.
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithInitialCursor resumes from a previously applied sequence number.
func WithInitialCursor(seq uint64) Option {
	return func(m *Manager) { m.cursor = seq }
}

// WithStateFunc registers a callback invoked on every state change.
func WithStateFunc(fn func(State)) Option {
	return func(m *Manager) { m.onState = fn }
}

// Manager runs the subscription loop. Events are handed to the onEvent
// callback strictly in transport delivery order, on a single goroutine.
type Manager struct {
	subscribe Subscriber
	onEvent   func(timeline.RawEvent)
	onState   func(State)
	cfg       Config
	clock     Clock
	logger    *slog.Logger

	mu           sync.Mutex
	state        State
	cursor       uint64
	attempts     int
	lastActivity time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager; Start begins the loop.
func NewManager(subscribe Subscriber, cfg Config, onEvent func(timeline.RawEvent), opts ...Option) *Manager {
	m := &Manager{
		subscribe: subscribe,
		onEvent:   onEvent,
		cfg:       cfg.withDefaults(),
		clock:     SystemClock(),
		logger:    slog.Default(),
		state:     StateConnecting,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the subscription loop and the staleness watchdog. Both
// stop together when Stop is called or ctx is cancelled; tearing down one
// without the other would leave a zombie reconnect alive.
func (m *Manager) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.lastActivity = m.clock.Now()
	m.mu.Unlock()

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.run(runCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.watchdog(runCtx)
	}()
}

// Stop tears down the subscription: pending retry timer, watchdog, and
// transport all go at once. It blocks until both goroutines exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cursor returns the highest sequence number applied so far.
func (m *Manager) Cursor() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *Manager) run(ctx context.Context) {
	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if first {
			m.setState(StateConnecting)
		} else {
			m.setState(StateReconnecting)
		}

		since := m.Cursor()
		ch, err := m.subscribe(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("subscribe failed",
				slog.Uint64("since", since),
				slog.String("error", err.Error()),
			)
			if !m.backoff(ctx) {
				return
			}
			first = false
			continue
		}

		first = false
		m.setState(StateConnected)
		m.touch()

		m.consume(ctx, ch)
		if ctx.Err() != nil {
			return
		}
		m.logger.Info("stream closed, reconnecting", slog.Uint64("cursor", m.Cursor()))
		if !m.backoff(ctx) {
			return
		}
	}
}

func (m *Manager) consume(ctx context.Context, ch <-chan Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if env.Heartbeat {
				m.activity()
				continue
			}
			if env.Event == nil {
				continue
			}
			ev := *env.Event

			m.mu.Lock()
			if ev.Seq <= m.cursor && m.cursor != 0 {
				// Server double-send at a reconnect boundary.
				m.lastActivity = m.clock.Now()
				m.mu.Unlock()
				continue
			}
			m.cursor = ev.Seq
			m.attempts = 0
			m.lastActivity = m.clock.Now()
			changed := m.state != StateConnected
			m.state = StateConnected
			onState := m.onState
			m.mu.Unlock()

			if changed && onState != nil {
				onState(StateConnected)
			}
			if m.onEvent != nil {
				m.onEvent(ev)
			}
		}
	}
}

// activity marks the transport live: heartbeats reset the attempt counter
// and the staleness timer but never advance the cursor.
func (m *Manager) activity() {
	m.mu.Lock()
	m.attempts = 0
	m.lastActivity = m.clock.Now()
	changed := m.state != StateConnected
	m.state = StateConnected
	onState := m.onState
	m.mu.Unlock()

	if changed && onState != nil {
		onState(StateConnected)
	}
}

func (m *Manager) touch() {
	m.mu.Lock()
	m.lastActivity = m.clock.Now()
	m.mu.Unlock()
}

// backoff waits min(MaxDelay, BaseDelay x 2^attempt) before the next
// attempt. Returns false if the context died while waiting.
func (m *Manager) backoff(ctx context.Context) bool {
	m.mu.Lock()
	attempt := m.attempts
	m.attempts++
	m.mu.Unlock()

	delay := m.cfg.BaseDelay
	for i := 0; i < attempt && delay < m.cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > m.cfg.MaxDelay {
		delay = m.cfg.MaxDelay
	}

	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(delay):
		return true
	}
}

func (m *Manager) watchdog(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.mu.Lock()
			state := m.state
			stale := m.clock.Now().Sub(m.lastActivity) > m.cfg.StaleThreshold
			onState := m.onState
			var next State
			switch {
			case state == StateConnecting || state == StateReconnecting:
				// A transport attempt is in flight; silence is expected.
				m.mu.Unlock()
				continue
			case stale && state == StateConnected:
				next = StateLagging
			case !stale && state == StateLagging:
				next = StateConnected
			default:
				m.mu.Unlock()
				continue
			}
			m.state = next
			m.mu.Unlock()

			m.logger.Info("connection state changed", slog.String("state", string(next)))
			if onState != nil {
				onState(next)
			}
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	onState := m.onState
	m.mu.Unlock()

	if changed && onState != nil {
		onState(s)
	}
}
