package timeline

import (
	"sort"
	"strings"
)

// TurnStatus is the derived lifecycle state of a conversation turn.
type TurnStatus string

const (
	TurnUnknown     TurnStatus = "unknown"
	TurnInProgress  TurnStatus = "inProgress"
	TurnCompleted   TurnStatus = "completed"
	TurnFailed      TurnStatus = "failed"
	TurnInterrupted TurnStatus = "interrupted"
)

// ToolCall is one tool invocation surfaced on a turn.
type ToolCall struct {
	ToolName string `json:"toolName,omitempty"`
	Text     string `json:"text"`
}

// ConversationTurn aggregates every timeline item sharing a turn id.
// Text fields only ever grow or are replaced by a more complete variant.
type ConversationTurn struct {
	TurnID        string     `json:"turnId"`
	StartedAt     string     `json:"startedAt"`
	CompletedAt   string     `json:"completedAt"`
	Status        TurnStatus `json:"status"`
	IsStreaming   bool       `json:"isStreaming"`
	UserText      string     `json:"userText,omitempty"`
	AssistantText string     `json:"assistantText,omitempty"`
	ThinkingText  string     `json:"thinkingText,omitempty"`
	ToolCalls     []ToolCall `json:"toolCalls,omitempty"`
	ToolResults   []string   `json:"toolResults,omitempty"`
}

type turnAccumulator struct {
	turn           *ConversationTurn
	userFinals     *finalTexts
	agentFinals    *finalTexts
	thinkingFinals *finalTexts
	assistantDelta strings.Builder
	thinkingDelta  strings.Builder
	callsSeen      map[string]struct{}
	resultsSeen    map[string]struct{}
}

// finalTexts collects complete (non-delta) message texts, dropping
// case/whitespace-equivalent repeats and remembering the longest seen.
type finalTexts struct {
	seen    map[string]struct{}
	longest string
}

func newFinalTexts() *finalTexts {
	return &finalTexts{seen: make(map[string]struct{})}
}

func (f *finalTexts) add(text string) {
	sig := normalizeText(text)
	if sig == "" {
		return
	}
	if _, dup := f.seen[sig]; dup {
		return
	}
	f.seen[sig] = struct{}{}
	if len(text) > len(f.longest) {
		f.longest = text
	}
}

// Aggregate folds an ordered item sequence into per-turn conversation
// state. Items without a turn id cannot be rendered in a per-turn view and
// are skipped. Turns that produced no observable content are omitted
// rather than rendered empty.
func Aggregate(items []Item) map[string]*ConversationTurn {
	accs := make(map[string]*turnAccumulator)

	for _, it := range items {
		if it.TurnID == "" {
			continue
		}
		acc := accs[it.TurnID]
		if acc == nil {
			acc = &turnAccumulator{
				turn:           &ConversationTurn{TurnID: it.TurnID, Status: TurnUnknown},
				userFinals:     newFinalTexts(),
				agentFinals:    newFinalTexts(),
				thinkingFinals: newFinalTexts(),
				callsSeen:      make(map[string]struct{}),
				resultsSeen:    make(map[string]struct{}),
			}
			accs[it.TurnID] = acc
		}
		acc.observe(it)
	}

	out := make(map[string]*ConversationTurn, len(accs))
	for id, acc := range accs {
		turn := acc.publish()
		if turn == nil {
			continue
		}
		out[id] = turn
	}
	return out
}

func (a *turnAccumulator) observe(it Item) {
	t := a.turn
	if t.StartedAt == "" || it.TS < t.StartedAt {
		t.StartedAt = it.TS
	}
	if it.TS > t.CompletedAt {
		t.CompletedAt = it.TS
	}

	// Status transitions are deliberately not monotonic: a later
	// turn/started for a reused turn id reverts a completed turn.
	switch it.RawType {
	case EventTurnStarted:
		t.Status = TurnInProgress
	case EventTurnCompleted:
		t.Status = statusFromText(it.Text)
	}

	switch it.Type {
	case ItemUserMessage:
		a.userFinals.add(it.Text)

	case ItemAssistantMessage:
		if IsDelta(it.RawType) {
			a.assistantDelta.WriteString(it.Text)
			// Some servers never emit an explicit turn/started.
			if t.Status == TurnUnknown {
				t.Status = TurnInProgress
			}
		} else {
			a.agentFinals.add(it.Text)
		}

	case ItemReasoning:
		if IsDelta(it.RawType) {
			a.thinkingDelta.WriteString(it.Text)
		} else {
			a.thinkingFinals.add(it.Text)
		}

	case ItemToolCall:
		sig := it.ToolName + "\x1f" + normalizeText(it.Text)
		if _, dup := a.callsSeen[sig]; !dup {
			a.callsSeen[sig] = struct{}{}
			t.ToolCalls = append(t.ToolCalls, ToolCall{ToolName: it.ToolName, Text: it.Text})
		}

	case ItemToolResult:
		sig := normalizeText(it.Text)
		if _, dup := a.resultsSeen[sig]; !dup {
			a.resultsSeen[sig] = struct{}{}
			t.ToolResults = append(t.ToolResults, it.Text)
		}
	}
}

func (a *turnAccumulator) publish() *ConversationTurn {
	t := a.turn
	t.UserText = a.userFinals.longest
	t.AssistantText = MergeStreamedText(a.agentFinals.longest, a.assistantDelta.String())
	t.ThinkingText = MergeStreamedText(a.thinkingFinals.longest, a.thinkingDelta.String())
	t.IsStreaming = t.Status == TurnInProgress

	if t.UserText == "" && t.AssistantText == "" && t.ThinkingText == "" &&
		len(t.ToolCalls) == 0 && len(t.ToolResults) == 0 {
		return nil
	}
	return t
}

// MergeStreamedText reconciles a complete message text with the running
// concatenation of its streamed deltas. Containment decides when one
// variant subsumes the other; genuinely divergent variants resolve by
// length, favoring eventual completeness over loss.
func MergeStreamedText(base, delta string) string {
	if strings.TrimSpace(base) == "" {
		return delta
	}
	if delta == "" {
		return base
	}
	if strings.Contains(base, delta) {
		return base
	}
	if strings.Contains(delta, base) {
		return delta
	}
	if len(delta) > len(base) {
		return delta
	}
	return base
}

// SortTurns orders turns by start time, then turn id for stability.
func SortTurns(turns map[string]*ConversationTurn) []*ConversationTurn {
	out := make([]*ConversationTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].TurnID < out[j].TurnID
	})
	return out
}

// statusFromText derives a terminal turn status from the free-form status
// text carried by turn/completed. Older payload shapes only report status
// this way, so the string match stays for compatibility.
func statusFromText(text string) TurnStatus {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "failed"):
		return TurnFailed
	case strings.Contains(lower, "interrupted"):
		return TurnInterrupted
	default:
		return TurnCompleted
	}
}

// IsDelta reports whether rawType marks a streaming fragment rather
// than a finalized item.
func IsDelta(rawType string) bool {
	return strings.HasSuffix(rawType, "/delta") || strings.HasSuffix(rawType, "Delta")
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
