package pending

import (
	"encoding/json"
	"testing"

	"github.com/codedeck/codedeck/internal/timeline"
)

func approvalEvent(seq uint64, name, approvalID string) timeline.RawEvent {
	return timeline.RawEvent{
		Seq:      seq,
		ServerTS: "2026-01-01T00:00:00Z",
		ThreadID: "thread-1",
		TurnID:   "turn-1",
		Kind:     timeline.KindApproval,
		Name:     name,
		Payload:  json.RawMessage(`{"approvalId":"` + approvalID + `","command":"rm -rf ./build"}`),
	}
}

func interactionEvent(seq uint64, name, interactionID string) timeline.RawEvent {
	return timeline.RawEvent{
		Seq:      seq,
		ServerTS: "2026-01-01T00:00:00Z",
		ThreadID: "thread-1",
		Kind:     timeline.KindInteraction,
		Name:     name,
		Payload:  json.RawMessage(`{"interactionId":"` + interactionID + `","prompt":"pick one","options":["a","b"]}`),
	}
}

func TestRegistry_ApprovalLifecycle(t *testing.T) {
	r := NewRegistry()

	r.Apply(approvalEvent(1, EventApprovalRequested, "ap-1"))
	if !r.HasApproval("ap-1") {
		t.Fatal("ap-1 not pending after request")
	}

	r.Apply(approvalEvent(2, EventApprovalDecision, "ap-1"))
	if r.HasApproval("ap-1") {
		t.Fatal("ap-1 still pending after decision")
	}

	// Second decision for the same id is a no-op, not an error.
	r.Apply(approvalEvent(3, EventApprovalDecision, "ap-1"))
	if r.HasApproval("ap-1") {
		t.Fatal("ap-1 reappeared after duplicate decision")
	}
}

func TestRegistry_InteractionLifecycle(t *testing.T) {
	r := NewRegistry()

	r.Apply(interactionEvent(1, EventInteractionRequested, "in-1"))
	r.Apply(interactionEvent(2, EventInteractionRequested, "in-2"))
	if got := len(r.Interactions()); got != 2 {
		t.Fatalf("len(Interactions()) = %d, want 2", got)
	}

	r.Apply(interactionEvent(3, EventInteractionResponded, "in-1"))
	r.Apply(interactionEvent(4, EventInteractionCancelled, "in-2"))
	if got := len(r.Interactions()); got != 0 {
		t.Fatalf("len(Interactions()) = %d, want 0", got)
	}
}

func TestRegistry_RemoveNonexistentIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Apply(approvalEvent(1, EventApprovalDecision, "never-added"))
	r.Apply(interactionEvent(2, EventInteractionResponded, "never-added"))
	if len(r.Approvals()) != 0 || len(r.Interactions()) != 0 {
		t.Error("registry not empty after removing nonexistent keys")
	}
}

func TestRegistry_IgnoresOtherKindsAndMalformedPayloads(t *testing.T) {
	r := NewRegistry()

	r.Apply(timeline.RawEvent{Kind: timeline.KindItem, Name: "item/completed", Payload: json.RawMessage(`{}`)})
	r.Apply(timeline.RawEvent{Kind: timeline.KindApproval, Name: EventApprovalRequested, Payload: json.RawMessage(`{"approvalId"`)})
	r.Apply(timeline.RawEvent{Kind: timeline.KindApproval, Name: EventApprovalRequested, Payload: json.RawMessage(`{}`)})

	if len(r.Approvals()) != 0 {
		t.Errorf("Approvals() = %v, want empty", r.Approvals())
	}
}

func TestRegistry_SeedReplacesState(t *testing.T) {
	r := NewRegistry()
	r.Apply(approvalEvent(1, EventApprovalRequested, "stale"))

	r.Seed(
		[]Approval{{ID: "ap-1", Command: "go test ./..."}},
		[]Interaction{{ID: "in-1", Prompt: "which branch?"}},
	)

	if r.HasApproval("stale") {
		t.Error("stale approval survived seeding")
	}
	if !r.HasApproval("ap-1") || !r.HasInteraction("in-1") {
		t.Error("seeded entries missing")
	}
}

func TestRegistry_OrderedByRequestTime(t *testing.T) {
	r := NewRegistry()
	ev := approvalEvent(1, EventApprovalRequested, "ap-late")
	ev.ServerTS = "2026-01-01T00:00:09Z"
	r.Apply(ev)
	r.Apply(approvalEvent(2, EventApprovalRequested, "ap-early"))

	got := r.Approvals()
	if len(got) != 2 || got[0].ID != "ap-early" || got[1].ID != "ap-late" {
		t.Errorf("Approvals() order = %v", got)
	}
}
