package pregel

import (
	"context"
	"testing"
)

// TestCommit_UntouchedTopicClearsAcrossInterveningStep exercises C1 across
// two commits: a Topic written in one step must not keep exposing that
// step's writes once a later step commits without touching it at all.
func TestCommit_UntouchedTopicClearsAcrossInterveningStep(t *testing.T) {
	node, _ := SubscribeTo("in").Do(noopCallable).Build("a")
	g := newTestGraphWithNodes(t, node)

	channels := map[string]Channel{
		"topic": NewTopic[int]()(),
		"other": NewLastValue[int]()(),
	}
	run := newTestRun(g, channels)

	if err := g.commit(context.Background(), run, map[string][]any{"topic": {1, 2}}); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	v, _, _ := channels["topic"].Read()
	if got := v.([]int); len(got) != 2 {
		t.Fatalf("expected topic to show [1 2] after first commit, got %v", got)
	}

	// second commit never mentions "topic" at all.
	if err := g.commit(context.Background(), run, map[string][]any{"other": {9}}); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	v, _, _ = channels["topic"].Read()
	if got := v.([]int); len(got) != 0 {
		t.Fatalf("expected topic cleared after an untouched commit, got %v", got)
	}
}
