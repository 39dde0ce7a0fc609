// Package devserver is a self-contained stand-in for the assistant
// control plane: snapshot REST, a resumable SSE feed with heartbeats,
// and scripted assistant replies. It exists for local development of the
// console and for exercising the full client stack in tests.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codedeck/codedeck/internal/pending"
	"github.com/codedeck/codedeck/internal/timeline"
)

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHeartbeatInterval overrides the SSE heartbeat cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Server) { s.heartbeatEvery = d }
}

// WithScriptedReplies toggles the canned assistant turn emitted after
// each posted user message.
func WithScriptedReplies(enabled bool) Option {
	return func(s *Server) { s.scripted = enabled }
}

// Server holds all state in memory; restarting it starts a clean world.
type Server struct {
	logger         *slog.Logger
	heartbeatEvery time.Duration
	scripted       bool

	mu      sync.Mutex
	threads map[string]*threadState
}

type threadState struct {
	id       string
	title    string
	created  string
	events   []timeline.RawEvent
	nextSeq  uint64
	registry *pending.Registry
	subs     map[chan timeline.RawEvent]struct{}
}

// New creates a dev control plane with one ready-to-use thread.
func New(opts ...Option) *Server {
	s := &Server{
		logger:         slog.Default(),
		heartbeatEvery: 2 * time.Second,
		scripted:       true,
		threads:        make(map[string]*threadState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createThread("scratch")
	return s
}

// Handler returns the HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/threads", s.handleListThreads)
	r.Post("/api/threads", s.handleCreateThread)
	r.Get("/api/models", s.handleListModels)
	r.Get("/api/threads/{threadID}/snapshot", s.handleSnapshot)
	r.Get("/api/threads/{threadID}/events", s.handleEvents)
	r.Post("/api/threads/{threadID}/messages", s.handleMessage)
	r.Post("/api/threads/{threadID}/approvals/{approvalID}", s.handleApproval)
	r.Post("/api/threads/{threadID}/interactions/{interactionID}", s.handleInteraction)
	r.Post("/api/threads/{threadID}/turns/{turnID}/interrupt", s.handleInterrupt)

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("dev control plane listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) createThread(title string) *threadState {
	t := &threadState{
		id:       "thread-" + uuid.New().String()[:8],
		title:    title,
		created:  time.Now().UTC().Format(time.RFC3339Nano),
		registry: pending.NewRegistry(),
		subs:     make(map[chan timeline.RawEvent]struct{}),
	}
	s.mu.Lock()
	s.threads[t.id] = t
	s.mu.Unlock()
	return t
}

func (s *Server) thread(id string) *threadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[id]
}

// appendEvent assigns the next sequence number, records the event, feeds
// the pending registry, and fans out to every live subscriber.
func (s *Server) appendEvent(t *threadState, turnID, kind, name string, payload any) timeline.RawEvent {
	raw, _ := json.Marshal(payload)

	s.mu.Lock()
	t.nextSeq++
	ev := timeline.RawEvent{
		Seq:      t.nextSeq,
		ServerTS: time.Now().UTC().Format(time.RFC3339Nano),
		ThreadID: t.id,
		TurnID:   turnID,
		Kind:     kind,
		Name:     name,
		Payload:  raw,
	}
	t.events = append(t.events, ev)
	subs := make([]chan timeline.RawEvent, 0, len(t.subs))
	for ch := range t.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	t.registry.Apply(ev)
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; it will catch up via since replay.
		}
	}
	return ev
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	type threadJSON struct {
		ID        string `json:"id"`
		Title     string `json:"title,omitempty"`
		CreatedAt string `json:"createdAt,omitempty"`
	}
	var threads []threadJSON
	for _, t := range s.threads {
		threads = append(threads, threadJSON{ID: t.id, Title: t.title, CreatedAt: t.created})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	t := s.createThread(body.Title)
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":        t.id,
		"title":     t.title,
		"createdAt": t.created,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": []map[string]any{
			{"id": "assistant-large", "displayName": "Assistant Large", "default": true},
			{"id": "assistant-mini", "displayName": "Assistant Mini"},
		},
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	t := s.thread(chi.URLParam(r, "threadID"))
	if t == nil {
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	}

	s.mu.Lock()
	events := append([]timeline.RawEvent(nil), t.events...)
	seq := t.nextSeq
	s.mu.Unlock()

	var items []timeline.Item
	for _, ev := range events {
		if it, ok := timeline.Normalize(ev); ok {
			items = append(items, it)
		}
	}
	items = timeline.Merge(nil, items)

	writeJSON(w, http.StatusOK, map[string]any{
		"threadId":            t.id,
		"seq":                 seq,
		"items":               items,
		"pendingApprovals":    t.registry.Approvals(),
		"pendingInteractions": t.registry.Interactions(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	t := s.thread(chi.URLParam(r, "threadID"))
	if t == nil {
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var since uint64
	fmt.Sscanf(r.URL.Query().Get("since"), "%d", &since)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	sub := make(chan timeline.RawEvent, 64)
	s.mu.Lock()
	// Replay at-or-after the cursor; the client discards the overlap.
	var backlog []timeline.RawEvent
	for _, ev := range t.events {
		if since == 0 || ev.Seq >= since {
			backlog = append(backlog, ev)
		}
	}
	t.subs[sub] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(t.subs, sub)
		s.mu.Unlock()
	}()

	writeFrame := func(ev timeline.RawEvent) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return true
		}
		if _, err := fmt.Fprintf(w, "event: gateway\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for _, ev := range backlog {
		if !writeFrame(ev) {
			return
		}
	}

	heartbeat := time.NewTicker(s.heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub:
			if !writeFrame(ev) {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, "event: heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	t := s.thread(chi.URLParam(r, "threadID"))
	if t == nil {
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	turnID := "turn-" + uuid.New().String()[:8]
	s.appendEvent(t, turnID, timeline.KindItem, "item/completed", map[string]any{
		"item": map[string]any{"type": "userMessage", "text": body.Text},
	})
	if s.scripted {
		go s.scriptedReply(t, turnID, body.Text)
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"turnId": turnID})
}

// scriptedReply emits a small but complete assistant turn: start, text
// deltas, the final message, and completion.
func (s *Server) scriptedReply(t *threadState, turnID, userText string) {
	reply := fmt.Sprintf("Looking at %q now. I will report back shortly.", userText)

	s.appendEvent(t, turnID, timeline.KindTurn, "turn/started", map[string]any{})
	for i := 0; i < len(reply); i += 16 {
		end := i + 16
		if end > len(reply) {
			end = len(reply)
		}
		s.appendEvent(t, turnID, timeline.KindItem, "item/agentMessage/delta", map[string]any{
			"delta": reply[i:end],
		})
		time.Sleep(30 * time.Millisecond)
	}
	s.appendEvent(t, turnID, timeline.KindItem, "item/completed", map[string]any{
		"item": map[string]any{"type": "agentMessage", "text": reply},
	})
	s.appendEvent(t, turnID, timeline.KindTurn, "turn/completed", map[string]any{
		"status": "completed",
	})
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	t := s.thread(chi.URLParam(r, "threadID"))
	if t == nil {
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	}
	var body struct {
		Decision string `json:"decision"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.appendEvent(t, "", timeline.KindApproval, pending.EventApprovalDecision, map[string]any{
		"approvalId": chi.URLParam(r, "approvalID"),
		"decision":   body.Decision,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	t := s.thread(chi.URLParam(r, "threadID"))
	if t == nil {
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	}
	var body struct {
		Answer string `json:"answer"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.appendEvent(t, "", timeline.KindInteraction, pending.EventInteractionResponded, map[string]any{
		"interactionId": chi.URLParam(r, "interactionID"),
		"answer":        body.Answer,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	t := s.thread(chi.URLParam(r, "threadID"))
	if t == nil {
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	}
	s.appendEvent(t, chi.URLParam(r, "turnID"), timeline.KindTurn, "turn/completed", map[string]any{
		"status": "interrupted",
	})
	w.WriteHeader(http.StatusAccepted)
}

// RequestApproval injects a pending approval request, used by tests and
// demo scripts.
func (s *Server) RequestApproval(threadID, turnID, approvalID, command string) {
	t := s.thread(threadID)
	if t == nil {
		return
	}
	s.appendEvent(t, turnID, timeline.KindApproval, pending.EventApprovalRequested, map[string]any{
		"approvalId": approvalID,
		"command":    command,
	})
}

// FirstThreadID returns the id of the seeded scratch thread.
func (s *Server) FirstThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.threads {
		return id
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"message": msg}})
}
