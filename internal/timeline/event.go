// Package timeline turns the gateway's raw event feed into a deduplicated,
// ordered, per-turn conversation model. Normalize, Merge, and Aggregate are
// pure functions; all connection state lives in the stream package.
package timeline

import "encoding/json"

// Event kinds as reported by the gateway feed.
const (
	KindItem        = "item"
	KindTurn        = "turn"
	KindApproval    = "approval"
	KindInteraction = "interaction"
	KindThread      = "thread"
)

// RawEvent is one event as pushed by the gateway. Seq is monotonic per
// thread and is the resume cursor unit. Payload stays opaque until the
// normalizer (or a registry) picks it apart.
type RawEvent struct {
	Seq      uint64          `json:"seq"`
	ServerTS string          `json:"serverTs"`
	ThreadID string          `json:"threadId"`
	TurnID   string          `json:"turnId,omitempty"`
	Kind     string          `json:"kind"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}
