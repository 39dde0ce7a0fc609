package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codedeck/codedeck/internal/journal"
	"github.com/codedeck/codedeck/internal/session"
	"github.com/codedeck/codedeck/internal/stream"
	"github.com/codedeck/codedeck/internal/telemetry"
	"github.com/codedeck/codedeck/internal/timeline"
	"github.com/codedeck/codedeck/internal/tokens"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <thread-id>",
	Short: "Follow a conversation thread live",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	threadID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagTrace {
		shutdown, err := telemetry.InitTracer("codedeck", slog.Default())
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown(context.Background())
	}

	client := newGatewayClient(cfg)

	opts := []session.Option{
		session.WithStreamConfig(cfg.Stream.ManagerConfig()),
		session.WithBufferCap(cfg.Stream.BufferCap),
	}
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
		opts = append(opts, session.WithJournal(store))
	}

	updates := make(chan struct{}, 1)
	opts = append(opts, session.WithUpdateFunc(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	}))

	sess := session.New(threadID, client, client.SubscriberFor(threadID), opts...)
	if err := sess.Open(ctx); err != nil {
		return fmt.Errorf("open thread %s: %w", threadID, err)
	}
	defer sess.Close()

	fmt.Printf("watching thread %s (ctrl-c to stop)\n", threadID)

	view := newWatchView()
	view.render(sess)
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-updates:
			view.render(sess)
		}
	}
}

// watchView prints the timeline append-only: each finalized item once,
// connection-state transitions, pending prompts, and a per-turn token
// summary when the turn settles.
type watchView struct {
	estimator *tokens.Estimator
	printed   map[string]bool
	prompted  map[string]bool
	settled   map[string]bool
	lastState stream.State
}

func newWatchView() *watchView {
	return &watchView{
		estimator: tokens.NewEstimator(),
		printed:   make(map[string]bool),
		prompted:  make(map[string]bool),
		settled:   make(map[string]bool),
	}
}

func (v *watchView) render(sess *session.Session) {
	if state := sess.ConnState(); state != v.lastState {
		v.lastState = state
		fmt.Printf("-- connection: %s\n", state)
	}

	for _, it := range sess.Items() {
		if v.printed[it.ID] || timeline.IsDelta(it.RawType) {
			continue
		}
		v.printed[it.ID] = true
		text := it.Text
		if it.Type == timeline.ItemToolResult {
			text = truncate(text, 200)
		}
		fmt.Printf("[%s] %s\n", it.Title, text)
	}

	for _, ap := range sess.Pending().Approvals() {
		if v.prompted["ap:"+ap.ID] {
			continue
		}
		v.prompted["ap:"+ap.ID] = true
		fmt.Printf("?? approval %s wants to run: %s\n", ap.ID, ap.Command)
		fmt.Printf("   respond with: codedeck approve %s %s <allow|deny>\n", sess.ThreadID(), ap.ID)
	}
	for _, in := range sess.Pending().Interactions() {
		if v.prompted["in:"+in.ID] {
			continue
		}
		v.prompted["in:"+in.ID] = true
		fmt.Printf("?? interaction %s: %s %v\n", in.ID, in.Prompt, in.Options)
	}

	for _, turn := range timeline.SortTurns(sess.Turns()) {
		if turn.Status == timeline.TurnInProgress || turn.Status == timeline.TurnUnknown {
			continue
		}
		if v.settled[turn.TurnID] {
			continue
		}
		v.settled[turn.TurnID] = true
		usage := v.estimator.CountTurn(turn)
		fmt.Printf("-- turn %s %s (~%d tokens)\n", turn.TurnID, turn.Status, usage.Total())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
