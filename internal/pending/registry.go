// Package pending tracks approval and interaction requests awaiting a
// human decision. Both registries are driven by the same live event feed
// that feeds the timeline; after the one-time snapshot seed, the feed is
// the sole source of truth.
package pending

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/codedeck/codedeck/internal/timeline"
)

// Terminal event names. A terminal event for an id removes it; removal of
// an id that was never added is a no-op.
const (
	EventApprovalRequested    = "approval/requested"
	EventApprovalDecision     = "approval/decision"
	EventApprovalCancelled    = "approval/cancelled"
	EventInteractionRequested = "interaction/requested"
	EventInteractionResponded = "interaction/responded"
	EventInteractionCancelled = "interaction/cancelled"
)

// Approval is a pending request to run something that needs sign-off.
type Approval struct {
	ID          string `json:"id"`
	TurnID      string `json:"turnId,omitempty"`
	Command     string `json:"command,omitempty"`
	Reason      string `json:"reason,omitempty"`
	RequestedAt string `json:"requestedAt,omitempty"`
}

// Interaction is a pending question from the assistant.
type Interaction struct {
	ID          string   `json:"id"`
	TurnID      string   `json:"turnId,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Options     []string `json:"options,omitempty"`
	RequestedAt string   `json:"requestedAt,omitempty"`
}

type approvalPayload struct {
	ApprovalID string `json:"approvalId"`
	Command    string `json:"command"`
	Reason     string `json:"reason"`
}

type interactionPayload struct {
	InteractionID string   `json:"interactionId"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
}

// Registry holds both pending sets. It is safe for concurrent reads while
// the stream dispatch goroutine applies events.
type Registry struct {
	mu           sync.RWMutex
	approvals    map[string]Approval
	interactions map[string]Interaction
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		approvals:    make(map[string]Approval),
		interactions: make(map[string]Interaction),
	}
}

// Seed loads the one-time snapshot state. It replaces whatever is held.
func (r *Registry) Seed(approvals []Approval, interactions []Interaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvals = make(map[string]Approval, len(approvals))
	for _, a := range approvals {
		if a.ID != "" {
			r.approvals[a.ID] = a
		}
	}
	r.interactions = make(map[string]Interaction, len(interactions))
	for _, i := range interactions {
		if i.ID != "" {
			r.interactions[i.ID] = i
		}
	}
}

// Apply mutates registry membership from one live event. Events of other
// kinds, and events without an id, are ignored.
func (r *Registry) Apply(ev timeline.RawEvent) {
	switch ev.Kind {
	case timeline.KindApproval:
		r.applyApproval(ev)
	case timeline.KindInteraction:
		r.applyInteraction(ev)
	}
}

func (r *Registry) applyApproval(ev timeline.RawEvent) {
	var p approvalPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ApprovalID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Name {
	case EventApprovalDecision, EventApprovalCancelled:
		delete(r.approvals, p.ApprovalID)
	default:
		r.approvals[p.ApprovalID] = Approval{
			ID:          p.ApprovalID,
			TurnID:      ev.TurnID,
			Command:     p.Command,
			Reason:      p.Reason,
			RequestedAt: ev.ServerTS,
		}
	}
}

func (r *Registry) applyInteraction(ev timeline.RawEvent) {
	var p interactionPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.InteractionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Name {
	case EventInteractionResponded, EventInteractionCancelled:
		delete(r.interactions, p.InteractionID)
	default:
		r.interactions[p.InteractionID] = Interaction{
			ID:          p.InteractionID,
			TurnID:      ev.TurnID,
			Prompt:      p.Prompt,
			Options:     p.Options,
			RequestedAt: ev.ServerTS,
		}
	}
}

// Approvals returns the pending approvals ordered by request time, then id.
func (r *Registry) Approvals() []Approval {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Approval, 0, len(r.approvals))
	for _, a := range r.approvals {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt != out[j].RequestedAt {
			return out[i].RequestedAt < out[j].RequestedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Interactions returns the pending interactions ordered by request time, then id.
func (r *Registry) Interactions() []Interaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Interaction, 0, len(r.interactions))
	for _, i := range r.interactions {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt != out[j].RequestedAt {
			return out[i].RequestedAt < out[j].RequestedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasApproval reports whether an approval id is still pending.
func (r *Registry) HasApproval(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.approvals[id]
	return ok
}

// HasInteraction reports whether an interaction id is still pending.
func (r *Registry) HasInteraction(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.interactions[id]
	return ok
}
