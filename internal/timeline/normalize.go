package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Gateway event names the normalizer understands. Anything else maps to
// no item at all rather than an error; a single unrecognized event must
// never interrupt the feed.
const (
	EventTurnStarted     = "turn/started"
	EventTurnCompleted   = "turn/completed"
	EventAgentDelta      = "item/agentMessage/delta"
	EventReasoningDelta  = "item/reasoning/contentDelta"
	EventSummaryDelta    = "item/reasoning/summaryDelta"
	EventCommandOutDelta = "item/commandExecution/outputDelta"
	EventFileOutDelta    = "item/fileChange/outputDelta"
	EventItemStarted     = "item/started"
	EventItemCompleted   = "item/completed"
)

type turnPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type deltaPayload struct {
	Delta string `json:"delta"`
	Chunk string `json:"chunk"`
}

// envelopeItem is the typed sub-item carried by the generic item/started
// and item/completed envelopes.
type envelopeItem struct {
	Type      string   `json:"type"`
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Name      string   `json:"name"`
	Tool      string   `json:"tool"`
	CallID    string   `json:"callId"`
	Arguments string   `json:"arguments"`
	Input     string   `json:"input"`
	Output    string   `json:"output"`
	Query     string   `json:"query"`
	Summary   []string `json:"summary"`
}

type envelopePayload struct {
	Item envelopeItem `json:"item"`
}

// Normalize maps one raw gateway event to at most one canonical Item.
// It is pure and total: malformed payloads and unknown names return
// ok=false, never an error. Items whose derived text is empty after
// trimming are not recorded.
func Normalize(ev RawEvent) (Item, bool) {
	switch ev.Name {
	case EventTurnStarted:
		return statusItem(ev, "turn-started", "Turn started", "started")

	case EventTurnCompleted:
		var p turnPayload
		_ = json.Unmarshal(ev.Payload, &p)
		text := strings.TrimSpace(p.Status)
		if text == "" {
			text = "completed"
		}
		return statusItem(ev, "turn-completed", "Turn completed", text)

	case EventAgentDelta:
		return deltaItem(ev, ItemAssistantMessage, "agent-delta", "Assistant")

	case EventReasoningDelta, EventSummaryDelta:
		return deltaItem(ev, ItemReasoning, "reasoning-delta", "Reasoning")

	case EventCommandOutDelta:
		return toolOutputDelta(ev, "commandExecution")

	case EventFileOutDelta:
		return toolOutputDelta(ev, "fileChange")

	case EventItemStarted, EventItemCompleted:
		var p envelopePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return Item{}, false
		}
		return normalizeEnvelope(ev, p.Item)
	}
	return Item{}, false
}

func normalizeEnvelope(ev RawEvent, it envelopeItem) (Item, bool) {
	switch it.Type {
	case "userMessage":
		return finish(ev, ItemUserMessage, "user", "You", it.Text, "", "")

	case "agentMessage":
		return finish(ev, ItemAssistantMessage, "agent", "Assistant", it.Text, "", "")

	case "reasoning":
		text := it.Text
		if text == "" && len(it.Summary) > 0 {
			text = strings.Join(it.Summary, "\n")
		}
		return finish(ev, ItemReasoning, "reasoning", "Reasoning", text, "", "")

	case "plan":
		return finish(ev, ItemStatus, "plan", "Plan", it.Text, "", "")

	case "function_call":
		return finish(ev, ItemToolCall, "tool-call", "Tool call", it.Arguments, it.Name, callID(it))

	case "custom_tool_call":
		return finish(ev, ItemToolCall, "tool-call", "Tool call", it.Input, it.Tool, callID(it))

	case "web_search_call":
		return finish(ev, ItemToolCall, "tool-call", "Web search", it.Query, "webSearch", callID(it))

	case "function_call_output", "custom_tool_call_output", "web_search_call_output":
		return finish(ev, ItemToolResult, "tool-output", "Tool output", it.Output, "", callID(it))

	case "enteredReviewMode":
		return finish(ev, ItemStatus, "review", "Review", "entered review mode", "", "")

	case "exitedReviewMode":
		return finish(ev, ItemStatus, "review", "Review", "exited review mode", "", "")
	}
	return Item{}, false
}

func callID(it envelopeItem) string {
	if it.CallID != "" {
		return it.CallID
	}
	return it.ID
}

func statusItem(ev RawEvent, suffix, title, text string) (Item, bool) {
	return finish(ev, ItemStatus, suffix, title, text, "", "")
}

func deltaItem(ev RawEvent, typ ItemType, suffix, title string) (Item, bool) {
	var p deltaPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return Item{}, false
	}
	text := p.Delta
	if text == "" {
		text = p.Chunk
	}
	return finish(ev, typ, suffix, title, text, "", "")
}

func toolOutputDelta(ev RawEvent, tool string) (Item, bool) {
	var p deltaPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return Item{}, false
	}
	text := p.Chunk
	if text == "" {
		text = p.Delta
	}
	return finish(ev, ItemToolResult, "tool-output-delta", "Tool output", text, tool, "")
}

// finish assembles the Item and applies the empty-text rule. The ID is
// derived from the event sequence number plus a per-shape suffix so a
// redelivered event normalizes to an identical item.
func finish(ev RawEvent, typ ItemType, suffix, title, text, toolName, callID string) (Item, bool) {
	if strings.TrimSpace(text) == "" {
		return Item{}, false
	}
	return Item{
		ID:       fmt.Sprintf("evt-%d-%s", ev.Seq, suffix),
		TS:       ev.ServerTS,
		TurnID:   ev.TurnID,
		Type:     typ,
		Title:    title,
		Text:     text,
		RawType:  ev.Name,
		ToolName: toolName,
		CallID:   callID,
	}, true
}
