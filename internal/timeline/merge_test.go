package timeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func item(id, ts, turnID string, typ ItemType, text string) Item {
	return Item{ID: id, TS: ts, TurnID: turnID, Type: typ, Title: "t", Text: text, RawType: "item/completed"}
}

func TestMerge_SortedByTimestampThenID(t *testing.T) {
	snapshot := []Item{
		item("s-2", "2026-01-01T00:00:02Z", "turn-1", ItemAssistantMessage, "reply"),
	}
	live := []Item{
		item("l-3", "2026-01-01T00:00:03Z", "turn-1", ItemStatus, "completed"),
		item("l-1", "2026-01-01T00:00:01Z", "turn-1", ItemUserMessage, "hello"),
	}

	merged := Merge(snapshot, live)

	wantIDs := []string{"l-1", "s-2", "l-3"}
	if len(merged) != len(wantIDs) {
		t.Fatalf("len = %d, want %d", len(merged), len(wantIDs))
	}
	for i, id := range wantIDs {
		if merged[i].ID != id {
			t.Errorf("merged[%d].ID = %q, want %q", i, merged[i].ID, id)
		}
	}
}

func TestMerge_Idempotent(t *testing.T) {
	snapshot := []Item{
		item("a", "2026-01-01T00:00:01Z", "turn-1", ItemUserMessage, "hello"),
		item("b", "2026-01-01T00:00:02Z", "turn-1", ItemAssistantMessage, "hi"),
	}
	live := []Item{
		item("c", "2026-01-01T00:00:03Z", "turn-1", ItemStatus, "completed"),
	}

	first := Merge(snapshot, live)
	second := Merge(snapshot, live)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated merge diverged (-first +second):\n%s", diff)
	}
}

func TestMerge_RedeliveredLiveItemDedups(t *testing.T) {
	ev := rawEvent(5, "2026-01-01T00:00:01Z", "turn-1", KindItem, "item/agentMessage/delta", `{"delta":"Hel"}`)
	first, ok := Normalize(ev)
	if !ok {
		t.Fatal("Normalize() returned no item")
	}
	second, _ := Normalize(ev)

	merged := Merge(nil, []Item{first, second})
	if len(merged) != 1 {
		t.Fatalf("len = %d, want 1 after redelivery", len(merged))
	}
}

func TestMerge_SnapshotOverlapDedups(t *testing.T) {
	// The snapshot and the live feed synthesize different IDs for the
	// same underlying fact; the content signature still catches it.
	snap := item("snap-7", "2026-01-01T00:00:01Z", "turn-1", ItemUserMessage, "hello")
	liveCopy := snap
	liveCopy.ID = "evt-7-user"

	merged := Merge([]Item{snap}, []Item{liveCopy})
	if len(merged) != 1 {
		t.Fatalf("len = %d, want 1 for snapshot/live overlap", len(merged))
	}
	if merged[0].ID != "evt-7-user" {
		// First in (ts, id) order wins; "evt-7-user" < "snap-7".
		t.Errorf("kept ID = %q, want %q", merged[0].ID, "evt-7-user")
	}
}

func TestMerge_OrderIndependent(t *testing.T) {
	live := []Item{
		item("c", "2026-01-01T00:00:03Z", "turn-1", ItemStatus, "completed"),
		item("a", "2026-01-01T00:00:01Z", "turn-1", ItemUserMessage, "hello"),
		item("b", "2026-01-01T00:00:02Z", "turn-1", ItemAssistantMessage, "hi"),
	}
	reordered := []Item{live[1], live[2], live[0]}

	if diff := cmp.Diff(Merge(nil, live), Merge(nil, reordered)); diff != "" {
		t.Errorf("merge depends on input order (-a +b):\n%s", diff)
	}
}

func TestMerge_EmptyInputs(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("Merge(nil, nil) = %v, want empty", got)
	}
}
