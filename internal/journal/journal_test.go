package journal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/codedeck/codedeck/internal/timeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func journalEvent(seq uint64, name string) timeline.RawEvent {
	return timeline.RawEvent{
		Seq:      seq,
		ServerTS: "2026-01-01T00:00:01Z",
		ThreadID: "thread-1",
		TurnID:   "turn-1",
		Kind:     timeline.KindItem,
		Name:     name,
		Payload:  json.RawMessage(`{"delta":"hi"}`),
	}
}

func TestStore_AppendAndReplay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, seq := range []uint64{1, 2, 3} {
		if err := s.Append(ctx, journalEvent(seq, "item/agentMessage/delta")); err != nil {
			t.Fatalf("Append(%d) error = %v", seq, err)
		}
	}

	var got []uint64
	err := s.Replay(ctx, "thread-1", 1, func(ev timeline.RawEvent) error {
		got = append(got, ev.Seq)
		if ev.ThreadID != "thread-1" || ev.TurnID != "turn-1" {
			t.Errorf("event fields lost: %+v", ev)
		}
		if string(ev.Payload) != `{"delta":"hi"}` {
			t.Errorf("Payload = %s", ev.Payload)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("replayed seqs = %v, want [2 3]", got)
	}
}

func TestStore_AppendRedeliveryIgnored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := journalEvent(5, "item/agentMessage/delta")
	if err := s.Append(ctx, ev); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(ctx, ev); err != nil {
		t.Fatalf("Append() redelivery error = %v", err)
	}

	count := 0
	if err := s.Replay(ctx, "thread-1", 0, func(timeline.RawEvent) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after redelivery", count)
	}
}

func TestStore_LastSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx, "thread-1")
	if err != nil {
		t.Fatalf("LastSeq() error = %v", err)
	}
	if seq != 0 {
		t.Errorf("LastSeq() = %d on empty journal, want 0", seq)
	}

	_ = s.Append(ctx, journalEvent(7, "turn/started"))
	_ = s.Append(ctx, journalEvent(9, "turn/completed"))

	seq, err = s.LastSeq(ctx, "thread-1")
	if err != nil {
		t.Fatalf("LastSeq() error = %v", err)
	}
	if seq != 9 {
		t.Errorf("LastSeq() = %d, want 9", seq)
	}

	// Other threads do not leak in.
	seq, _ = s.LastSeq(ctx, "thread-2")
	if seq != 0 {
		t.Errorf("LastSeq(thread-2) = %d, want 0", seq)
	}
}
