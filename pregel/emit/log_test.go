package emit

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogEmitter_TextMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)
	l.Emit(Event{RunID: "r1", Step: 2, NodeID: "add_one", Msg: "node_end"})

	out := buf.String()
	if !strings.Contains(out, "[node_end]") || !strings.Contains(out, "runID=r1") || !strings.Contains(out, "nodeID=add_one") {
		t.Fatalf("unexpected text log line: %q", out)
	}
}

func TestLogEmitter_JSONMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)
	l.Emit(Event{RunID: "r1", Step: 1, Msg: "run_start"})

	out := buf.String()
	if !strings.Contains(out, `"RunID":"r1"`) || !strings.Contains(out, `"Msg":"run_start"`) {
		t.Fatalf("unexpected json log line: %q", out)
	}
}

func TestLogEmitter_NilWriterDefaultsToStdout(t *testing.T) {
	l := NewLogEmitter(nil, false)
	if l.writer == nil {
		t.Fatal("expected a non-nil default writer")
	}
}
