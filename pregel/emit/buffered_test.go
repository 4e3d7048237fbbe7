package emit

import "testing"

func TestBufferedEmitter_HistoryByRun(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a", Step: 1, Msg: "node_start", NodeID: "one"})
	b.Emit(Event{RunID: "a", Step: 1, Msg: "node_end", NodeID: "one"})
	b.Emit(Event{RunID: "b", Step: 1, Msg: "node_start", NodeID: "two"})

	history := b.GetHistory("a")
	if len(history) != 2 {
		t.Fatalf("expected 2 events for run a, got %d", len(history))
	}
	if len(b.GetHistory("b")) != 1 {
		t.Fatalf("expected run b to be isolated from run a")
	}
}

func TestBufferedEmitter_HistoryWithFilter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a", Step: 1, Msg: "node_start", NodeID: "one"})
	b.Emit(Event{RunID: "a", Step: 2, Msg: "node_end", NodeID: "one"})
	b.Emit(Event{RunID: "a", Step: 2, Msg: "node_start", NodeID: "two"})

	min := 2
	filtered := b.GetHistoryWithFilter("a", HistoryFilter{NodeID: "one", MinStep: &min})
	if len(filtered) != 1 || filtered[0].Msg != "node_end" {
		t.Fatalf("expected exactly the node_end event at step>=2 for node one, got %+v", filtered)
	}
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a", Msg: "run_start"})
	b.Emit(Event{RunID: "b", Msg: "run_start"})

	b.Clear("a")
	if len(b.GetHistory("a")) != 0 {
		t.Fatal("expected run a's history to be cleared")
	}
	if len(b.GetHistory("b")) != 1 {
		t.Fatal("expected run b's history to survive clearing run a")
	}

	b.Clear("")
	if len(b.GetHistory("b")) != 0 {
		t.Fatal("expected an empty runID to clear every run")
	}
}

func TestNullEmitter_DiscardsEverything(t *testing.T) {
	n := NewNullEmitter()
	n.Emit(Event{RunID: "x", Msg: "anything"})
	if err := n.EmitBatch(nil, []Event{{RunID: "x"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Flush(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
