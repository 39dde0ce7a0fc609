// Package tokens estimates token usage for conversation turns so the
// console can show a rough context-size figure without asking the
// control plane.
package tokens

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/codedeck/codedeck/internal/timeline"
)

// Usage is the per-turn token breakdown. Counts are estimates: the
// assistant's own tokenizer may differ from cl100k_base.
type Usage struct {
	User      int
	Assistant int
	Thinking  int
	Tools     int
}

// Total returns the sum across all categories.
func (u Usage) Total() int {
	return u.User + u.Assistant + u.Thinking + u.Tools
}

// Add accumulates another usage into this one.
func (u *Usage) Add(other Usage) {
	u.User += other.User
	u.Assistant += other.Assistant
	u.Thinking += other.Thinking
	u.Tools += other.Tools
}

// Estimator counts tokens with a lazily-initialized cl100k_base codec.
// Safe for concurrent use.
type Estimator struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewEstimator creates an estimator. The codec loads on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) init() {
	e.codec, e.err = tokenizer.Get(tokenizer.Cl100kBase)
	if e.err != nil {
		e.err = fmt.Errorf("load tokenizer: %w", e.err)
	}
}

// Count returns the token count for text. When the codec is unavailable
// it falls back to the rough four-characters-per-token heuristic.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(e.init)
	if e.err != nil {
		return (len(text) + 3) / 4
	}
	n, err := e.codec.Count(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return n
}

// CountTurn breaks down one turn's token usage.
func (e *Estimator) CountTurn(turn *timeline.ConversationTurn) Usage {
	if turn == nil {
		return Usage{}
	}
	u := Usage{
		User:      e.Count(turn.UserText),
		Assistant: e.Count(turn.AssistantText),
		Thinking:  e.Count(turn.ThinkingText),
	}
	for _, call := range turn.ToolCalls {
		u.Tools += e.Count(call.Text)
	}
	for _, result := range turn.ToolResults {
		u.Tools += e.Count(result)
	}
	return u
}

// CountConversation sums usage over every turn.
func (e *Estimator) CountConversation(turns []*timeline.ConversationTurn) Usage {
	var total Usage
	for _, turn := range turns {
		total.Add(e.CountTurn(turn))
	}
	return total
}
