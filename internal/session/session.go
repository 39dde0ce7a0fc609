// Package session wires the snapshot fetch, the stream manager, and the
// pure timeline folds into one live conversation view. All event
// application happens on the manager's single dispatch goroutine; reads
// can come from anywhere.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codedeck/codedeck/internal/api/gateway"
	"github.com/codedeck/codedeck/internal/pending"
	"github.com/codedeck/codedeck/internal/stream"
	"github.com/codedeck/codedeck/internal/timeline"
)

// ErrClosed is returned when a snapshot lands after the session was
// closed or superseded; the stale response is discarded.
var ErrClosed = errors.New("session closed")

const defaultBufferCap = 4096

// SnapshotFetcher is the one-time REST load at conversation open.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, threadID string) (*gateway.Snapshot, error)
}

// Journal records raw events as they are applied. Best-effort: append
// failures are logged, never propagated into the stream path.
type Journal interface {
	Append(ctx context.Context, ev timeline.RawEvent) error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithJournal records every applied event to a local journal.
func WithJournal(j Journal) Option {
	return func(s *Session) { s.journal = j }
}

// WithBufferCap bounds the accumulated live buffer; the oldest items are
// evicted past the cap to keep re-merge cost bounded.
func WithBufferCap(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.bufferCap = n
		}
	}
}

// WithStreamConfig sets the connection manager's timing knobs.
func WithStreamConfig(cfg stream.Config) Option {
	return func(s *Session) { s.streamCfg = cfg }
}

// WithClock swaps the clock handed to the connection manager.
func WithClock(clock stream.Clock) Option {
	return func(s *Session) { s.clock = clock }
}

// WithUpdateFunc registers a callback fired after every applied event and
// every connection-state change.
func WithUpdateFunc(fn func()) Option {
	return func(s *Session) { s.onUpdate = fn }
}

// Session is the reconciled, continuously updated view of one thread.
type Session struct {
	threadID  string
	fetcher   SnapshotFetcher
	subscribe stream.Subscriber
	registry  *pending.Registry
	journal   Journal
	logger    *slog.Logger
	bufferCap int
	streamCfg stream.Config
	clock     stream.Clock
	onUpdate  func()

	mu         sync.RWMutex
	generation uint64
	snapshot   []timeline.Item
	live       []timeline.Item
	manager    *stream.Manager
	connState  stream.State
}

// New creates a session for one thread. Open starts it.
func New(threadID string, fetcher SnapshotFetcher, subscribe stream.Subscriber, opts ...Option) *Session {
	s := &Session{
		threadID:  threadID,
		fetcher:   fetcher,
		subscribe: subscribe,
		registry:  pending.NewRegistry(),
		logger:    slog.Default(),
		bufferCap: defaultBufferCap,
		clock:     stream.SystemClock(),
		connState: stream.StateConnecting,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the snapshot and starts the live subscription. A snapshot
// failure is fatal for this conversation view; the caller surfaces it and
// does not retry automatically. If the session was closed while the fetch
// was in flight, the stale response is dropped and ErrClosed returned.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	snap, err := s.fetcher.FetchSnapshot(ctx, s.threadID)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrClosed
	}
	s.snapshot = snap.Items
	s.live = nil
	s.registry.Seed(snap.PendingApprovals, snap.PendingInteractions)

	mgr := stream.NewManager(s.subscribe, s.streamCfg, s.apply,
		stream.WithClock(s.clock),
		stream.WithLogger(s.logger),
		stream.WithInitialCursor(snap.Seq),
		stream.WithStateFunc(s.stateChanged),
	)
	s.manager = mgr
	s.mu.Unlock()

	mgr.Start(ctx)
	s.logger.Info("session opened",
		slog.String("thread_id", s.threadID),
		slog.Int("snapshot_items", len(snap.Items)),
		slog.Uint64("cursor", snap.Seq),
	)
	return nil
}

// Close supersedes the session: any in-flight snapshot is discarded and
// the stream manager, its retry timer, and its watchdog all stop.
func (s *Session) Close() {
	s.mu.Lock()
	s.generation++
	mgr := s.manager
	s.manager = nil
	s.mu.Unlock()

	if mgr != nil {
		mgr.Stop()
	}
}

// apply is the single-goroutine reducer for one live event.
func (s *Session) apply(ev timeline.RawEvent) {
	if s.journal != nil {
		if err := s.journal.Append(context.Background(), ev); err != nil {
			s.logger.Warn("journal append failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("error", err.Error()),
			)
		}
	}

	s.registry.Apply(ev)

	if it, ok := timeline.Normalize(ev); ok {
		s.mu.Lock()
		s.live = append(s.live, it)
		if over := len(s.live) - s.bufferCap; over > 0 {
			s.live = append(s.live[:0:0], s.live[over:]...)
		}
		s.mu.Unlock()
	}

	if s.onUpdate != nil {
		s.onUpdate()
	}
}

func (s *Session) stateChanged(state stream.State) {
	s.mu.Lock()
	s.connState = state
	s.mu.Unlock()
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// Items returns the merged, deduplicated, ordered timeline. The merge is
// recomputed from the full snapshot and live buffer on every call.
func (s *Session) Items() []timeline.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return timeline.Merge(s.snapshot, s.live)
}

// Turns returns the per-turn aggregation of the merged timeline.
func (s *Session) Turns() map[string]*timeline.ConversationTurn {
	return timeline.Aggregate(s.Items())
}

// ThreadID returns the thread this session follows.
func (s *Session) ThreadID() string {
	return s.threadID
}

// ConnState returns the live-feed connection state.
func (s *Session) ConnState() stream.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

// Pending exposes the approval/interaction registries.
func (s *Session) Pending() *pending.Registry {
	return s.registry
}

// Cursor returns the highest applied event sequence number.
func (s *Session) Cursor() uint64 {
	s.mu.RLock()
	mgr := s.manager
	s.mu.RUnlock()
	if mgr == nil {
		return 0
	}
	return mgr.Cursor()
}
