package timeline

import (
	"fmt"
	"testing"
)

func normalizeAll(t *testing.T, events []RawEvent) []Item {
	t.Helper()
	var items []Item
	for _, ev := range events {
		if it, ok := Normalize(ev); ok {
			items = append(items, it)
		}
	}
	return items
}

func TestAggregate_StreamedTurnLifecycle(t *testing.T) {
	events := []RawEvent{
		rawEvent(1, "2026-01-01T00:00:00Z", "turn-1", KindTurn, "turn/started", `{}`),
		rawEvent(2, "2026-01-01T00:00:01Z", "turn-1", KindItem, "item/agentMessage/delta", `{"delta":"Hel"}`),
		rawEvent(3, "2026-01-01T00:00:02Z", "turn-1", KindItem, "item/agentMessage/delta", `{"delta":"lo"}`),
		rawEvent(4, "2026-01-01T00:00:03Z", "turn-1", KindItem, "item/completed", `{"item":{"type":"agentMessage","text":"Hello world"}}`),
		rawEvent(5, "2026-01-01T00:00:04Z", "turn-1", KindTurn, "turn/completed", `{"status":"completed"}`),
	}

	turns := Aggregate(Merge(nil, normalizeAll(t, events)))
	if len(turns) != 1 {
		t.Fatalf("len(turns) = %d, want 1", len(turns))
	}
	turn := turns["turn-1"]
	if turn == nil {
		t.Fatal("turn-1 missing from aggregate output")
	}
	if turn.Status != TurnCompleted {
		t.Errorf("Status = %v, want %v", turn.Status, TurnCompleted)
	}
	if turn.IsStreaming {
		t.Error("IsStreaming = true for a completed turn")
	}
	if turn.AssistantText != "Hello world" {
		t.Errorf("AssistantText = %q, want %q", turn.AssistantText, "Hello world")
	}
	if turn.StartedAt != "2026-01-01T00:00:00Z" {
		t.Errorf("StartedAt = %q", turn.StartedAt)
	}
	if turn.CompletedAt != "2026-01-01T00:00:04Z" {
		t.Errorf("CompletedAt = %q", turn.CompletedAt)
	}
}

func TestAggregate_DeltaOnlyTurnStreams(t *testing.T) {
	// No explicit turn/started: an assistant delta alone marks the turn
	// as in progress.
	events := []RawEvent{
		rawEvent(1, "2026-01-01T00:00:01Z", "turn-1", KindItem, "item/agentMessage/delta", `{"delta":"thinking"}`),
	}

	turn := Aggregate(normalizeAll(t, events))["turn-1"]
	if turn == nil {
		t.Fatal("turn-1 missing")
	}
	if turn.Status != TurnInProgress {
		t.Errorf("Status = %v, want %v", turn.Status, TurnInProgress)
	}
	if !turn.IsStreaming {
		t.Error("IsStreaming = false while deltas are arriving")
	}
	if turn.AssistantText != "thinking" {
		t.Errorf("AssistantText = %q", turn.AssistantText)
	}
}

func TestAggregate_TerminalStatusHeuristic(t *testing.T) {
	tests := []struct {
		text string
		want TurnStatus
	}{
		{"completed", TurnCompleted},
		{"turn failed: tool error", TurnFailed},
		{"interrupted by user", TurnInterrupted},
		{"something else", TurnCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			events := []RawEvent{
				rawEvent(1, "2026-01-01T00:00:00Z", "turn-1", KindItem, "item/completed", `{"item":{"type":"userMessage","text":"go"}}`),
				rawEvent(2, "2026-01-01T00:00:01Z", "turn-1", KindTurn, "turn/completed", fmt.Sprintf(`{"status":%q}`, tt.text)),
			}
			turn := Aggregate(normalizeAll(t, events))["turn-1"]
			if turn == nil {
				t.Fatal("turn-1 missing")
			}
			if turn.Status != tt.want {
				t.Errorf("Status = %v, want %v", turn.Status, tt.want)
			}
		})
	}
}

func TestAggregate_ReusedTurnIDRevertsStatus(t *testing.T) {
	events := []RawEvent{
		rawEvent(1, "2026-01-01T00:00:00Z", "turn-1", KindItem, "item/completed", `{"item":{"type":"userMessage","text":"go"}}`),
		rawEvent(2, "2026-01-01T00:00:01Z", "turn-1", KindTurn, "turn/completed", `{"status":"completed"}`),
		rawEvent(3, "2026-01-01T00:00:02Z", "turn-1", KindTurn, "turn/started", `{}`),
	}

	turn := Aggregate(normalizeAll(t, events))["turn-1"]
	if turn == nil {
		t.Fatal("turn-1 missing")
	}
	if turn.Status != TurnInProgress {
		t.Errorf("Status = %v, want %v after reuse", turn.Status, TurnInProgress)
	}
}

func TestAggregate_ToolCallDedupIgnoresCallID(t *testing.T) {
	events := []RawEvent{
		rawEvent(1, "2026-01-01T00:00:00Z", "turn-1", KindItem, "item/started", `{"item":{"type":"function_call","name":"read_file","arguments":"main.go","callId":"call-1"}}`),
		rawEvent(2, "2026-01-01T00:00:01Z", "turn-1", KindItem, "item/started", `{"item":{"type":"function_call","name":"read_file","arguments":"main.go","callId":"call-2"}}`),
	}

	turn := Aggregate(normalizeAll(t, events))["turn-1"]
	if turn == nil {
		t.Fatal("turn-1 missing")
	}
	if len(turn.ToolCalls) != 1 {
		t.Fatalf("len(ToolCalls) = %d, want 1", len(turn.ToolCalls))
	}
	if turn.ToolCalls[0].ToolName != "read_file" {
		t.Errorf("ToolName = %q", turn.ToolCalls[0].ToolName)
	}
}

func TestAggregate_ToolResultDedupByText(t *testing.T) {
	events := []RawEvent{
		rawEvent(1, "2026-01-01T00:00:00Z", "turn-1", KindItem, "item/completed", `{"item":{"type":"function_call_output","output":"OK","callId":"c1"}}`),
		rawEvent(2, "2026-01-01T00:00:01Z", "turn-1", KindItem, "item/completed", `{"item":{"type":"function_call_output","output":"ok","callId":"c2"}}`),
		rawEvent(3, "2026-01-01T00:00:02Z", "turn-1", KindItem, "item/completed", `{"item":{"type":"function_call_output","output":"different","callId":"c3"}}`),
	}

	turn := Aggregate(normalizeAll(t, events))["turn-1"]
	if turn == nil {
		t.Fatal("turn-1 missing")
	}
	if len(turn.ToolResults) != 2 {
		t.Fatalf("len(ToolResults) = %d, want 2, got %v", len(turn.ToolResults), turn.ToolResults)
	}
	if turn.ToolResults[0] != "OK" {
		t.Errorf("first-seen result = %q, want %q", turn.ToolResults[0], "OK")
	}
}

func TestAggregate_DuplicateFinalTextDropped(t *testing.T) {
	events := []RawEvent{
		rawEvent(1, "2026-01-01T00:00:00Z", "turn-1", KindItem, "item/completed", `{"item":{"type":"agentMessage","text":"Same  answer"}}`),
		rawEvent(2, "2026-01-01T00:00:01Z", "turn-1", KindItem, "item/completed", `{"item":{"type":"agentMessage","text":"same answer"}}`),
	}

	turn := Aggregate(normalizeAll(t, events))["turn-1"]
	if turn == nil {
		t.Fatal("turn-1 missing")
	}
	if turn.AssistantText != "Same  answer" {
		t.Errorf("AssistantText = %q, want first-seen variant", turn.AssistantText)
	}
}

func TestAggregate_EmptyTurnExcluded(t *testing.T) {
	events := []RawEvent{
		rawEvent(1, "2026-01-01T00:00:00Z", "turn-1", KindTurn, "turn/started", `{}`),
		rawEvent(2, "2026-01-01T00:00:01Z", "turn-1", KindTurn, "turn/completed", `{"status":"completed"}`),
	}

	turns := Aggregate(normalizeAll(t, events))
	if _, exists := turns["turn-1"]; exists {
		t.Error("turn with no observable content appeared in output")
	}
}

func TestAggregate_ItemsWithoutTurnIDSkipped(t *testing.T) {
	items := []Item{
		item("a", "2026-01-01T00:00:00Z", "", ItemAssistantMessage, "orphan"),
	}
	if turns := Aggregate(items); len(turns) != 0 {
		t.Errorf("len(turns) = %d, want 0 for un-attributable items", len(turns))
	}
}

func TestMergeStreamedText(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		delta string
		want  string
	}{
		{"no base", "", "partial", "partial"},
		{"blank base", "   ", "partial", "partial"},
		{"no delta", "final", "", "final"},
		{"base contains delta", "Hello world", "Hello", "Hello world"},
		{"delta contains base", "Hello", "Hello world", "Hello world"},
		{"divergent longer delta", "short", "completely different text", "completely different text"},
		{"divergent longer base", "a much longer final text", "abc", "a much longer final text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeStreamedText(tt.base, tt.delta); got != tt.want {
				t.Errorf("MergeStreamedText(%q, %q) = %q, want %q", tt.base, tt.delta, got, tt.want)
			}
		})
	}
}

func TestMergeStreamedText_MonotonicUnderGrowingDeltas(t *testing.T) {
	base := "He"
	fragments := []string{"Hel", "Hello", "Hello wor", "Hello world"}

	prevLen := 0
	for _, delta := range fragments {
		got := MergeStreamedText(base, delta)
		if len(got) < prevLen {
			t.Fatalf("result %q shorter than previous length %d", got, prevLen)
		}
		prevLen = len(got)
	}
}

func TestSortTurns(t *testing.T) {
	turns := map[string]*ConversationTurn{
		"turn-b": {TurnID: "turn-b", StartedAt: "2026-01-01T00:00:05Z"},
		"turn-a": {TurnID: "turn-a", StartedAt: "2026-01-01T00:00:01Z"},
		"turn-c": {TurnID: "turn-c", StartedAt: "2026-01-01T00:00:01Z"},
	}

	sorted := SortTurns(turns)
	wantOrder := []string{"turn-a", "turn-c", "turn-b"}
	for i, want := range wantOrder {
		if sorted[i].TurnID != want {
			t.Errorf("sorted[%d] = %q, want %q", i, sorted[i].TurnID, want)
		}
	}
}
