package tokens

import (
	"testing"

	"github.com/codedeck/codedeck/internal/timeline"
)

func TestCount(t *testing.T) {
	e := NewEstimator()

	if got := e.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}

	n := e.Count("hello world")
	if n <= 0 {
		t.Fatalf("Count(\"hello world\") = %d, want > 0", n)
	}

	// More text never produces fewer tokens.
	longer := e.Count("hello world, this is a considerably longer sentence about parsers")
	if longer <= n {
		t.Errorf("longer text counted %d tokens, short text %d", longer, n)
	}
}

func TestCountTurn(t *testing.T) {
	e := NewEstimator()

	turn := &timeline.ConversationTurn{
		UserText:      "please run the tests",
		AssistantText: "running them now",
		ThinkingText:  "the user wants test output",
		ToolCalls:     []timeline.ToolCall{{ToolName: "shell", Text: "go test ./..."}},
		ToolResults:   []string{"ok\t3 packages"},
	}

	u := e.CountTurn(turn)
	if u.User == 0 || u.Assistant == 0 || u.Thinking == 0 || u.Tools == 0 {
		t.Fatalf("expected every category populated, got %+v", u)
	}
	if u.Total() != u.User+u.Assistant+u.Thinking+u.Tools {
		t.Errorf("Total() = %d, want sum of parts", u.Total())
	}

	if got := e.CountTurn(nil); got.Total() != 0 {
		t.Errorf("CountTurn(nil) = %+v, want zero usage", got)
	}
}

func TestCountConversation(t *testing.T) {
	e := NewEstimator()

	turns := []*timeline.ConversationTurn{
		{UserText: "first question"},
		{AssistantText: "second answer"},
	}

	total := e.CountConversation(turns)
	want := e.CountTurn(turns[0])
	want.Add(e.CountTurn(turns[1]))
	if total != want {
		t.Errorf("CountConversation = %+v, want %+v", total, want)
	}
}
