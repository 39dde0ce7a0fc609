package timeline

// ItemType classifies a canonical timeline item.
type ItemType string

const (
	ItemUserMessage      ItemType = "userMessage"
	ItemAssistantMessage ItemType = "assistantMessage"
	ItemReasoning        ItemType = "reasoning"
	ItemToolCall         ItemType = "toolCall"
	ItemToolResult       ItemType = "toolResult"
	ItemStatus           ItemType = "status"
)

// Item is a canonical, UI-agnostic fact derived from exactly one RawEvent
// (or loaded from a snapshot). ID is content-addressable: normalizing the
// same RawEvent twice yields the same ID, which is what makes the merge
// dedup safe under at-least-once delivery.
type Item struct {
	ID       string   `json:"id"`
	TS       string   `json:"ts"`
	TurnID   string   `json:"turnId,omitempty"`
	Type     ItemType `json:"type"`
	Title    string   `json:"title"`
	Text     string   `json:"text,omitempty"`
	RawType  string   `json:"rawType"`
	ToolName string   `json:"toolName,omitempty"`
	CallID   string   `json:"callId,omitempty"`
}
