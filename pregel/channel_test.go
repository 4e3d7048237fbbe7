package pregel

import (
	"context"
	"errors"
	"testing"
)

func TestLastValue_EmptyUntilWritten(t *testing.T) {
	ch := NewLastValue[int]()()
	if _, ok, err := ch.Read(); err != nil || ok {
		t.Fatalf("expected empty read, got ok=%v err=%v", ok, err)
	}
	changed, err := ch.Update([]any{5})
	if err != nil || !changed {
		t.Fatalf("unexpected update result: changed=%v err=%v", changed, err)
	}
	v, ok, err := ch.Read()
	if err != nil || !ok || v.(int) != 5 {
		t.Fatalf("expected 5, got %v ok=%v err=%v", v, ok, err)
	}
}

// P3: multiple writes to a LastValue channel within one step raise invalid
// update and commit nothing.
func TestLastValue_MultipleWritesRejected(t *testing.T) {
	ch := NewLastValue[int]()()
	_, _ = ch.Update([]any{1})

	changed, err := ch.Update([]any{2, 3})
	if !errors.Is(err, ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
	if changed {
		t.Fatalf("expected no change on rejected update")
	}
	v, _, _ := ch.Read()
	if v.(int) != 1 {
		t.Fatalf("expected value to remain 1 after rejected update, got %v", v)
	}
}

func TestLastValue_CheckpointRestore(t *testing.T) {
	ch := NewLastValue[string]()().(*lastValue[string])
	_, _ = ch.Update([]any{"hello"})

	blob, err := ch.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	restored := NewLastValue[string]()().(*lastValue[string])
	if err := restored.Restore(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	v, ok, _ := restored.Read()
	if !ok || v.(string) != "hello" {
		t.Fatalf("expected restored value hello, got %v ok=%v", v, ok)
	}
}

func TestTopic_DefaultShowsOnlyLastStepWrites(t *testing.T) {
	ch := NewTopic[int]()()
	_, _ = ch.Update([]any{1, 2})
	v, _, _ := ch.Read()
	if got := v.([]int); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected read after first update: %v", got)
	}

	_, _ = ch.Update([]any{3})
	v, _, _ = ch.Read()
	if got := v.([]int); len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected only most recent step's writes, got %v", got)
	}
}

func TestTopic_ClearIfUntouchedResetsLastStepView(t *testing.T) {
	ch := NewTopic[int]()()
	_, _ = ch.Update([]any{1, 2})

	// commit calls clearIfUntouched on any Topic absent from a step's
	// writes map at all, so the last step's writes don't leak into a
	// later step that never touched this channel.
	ch.(clearableChannel).clearIfUntouched()

	v, _, _ := ch.Read()
	if got := v.([]int); len(got) != 0 {
		t.Fatalf("expected no writes visible after clearIfUntouched, got %v", got)
	}
}

func TestTopic_UpdateWithNoWritesAlsoClears(t *testing.T) {
	ch := NewTopic[int]()()
	_, _ = ch.Update([]any{1, 2})
	changed, err := ch.Update(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected Update(nil) to report unchanged")
	}
	v, _, _ := ch.Read()
	if got := v.([]int); len(got) != 0 {
		t.Fatalf("expected no writes visible after Update(nil), got %v", got)
	}
}

func TestTopic_Accumulate(t *testing.T) {
	ch := NewTopic[int](WithAccumulate())()
	_, _ = ch.Update([]any{1})
	_, _ = ch.Update([]any{2, 3})

	v, _, _ := ch.Read()
	got := v.([]int)
	if len(got) != 3 {
		t.Fatalf("expected accumulated history of 3, got %v", got)
	}
}

func TestTopic_Unique(t *testing.T) {
	ch := NewTopic[int](WithAccumulate(), WithUnique())()
	_, _ = ch.Update([]any{1, 1, 2})
	_, _ = ch.Update([]any{2, 3})

	v, _, _ := ch.Read()
	got := v.([]int)
	if len(got) != 3 {
		t.Fatalf("expected deduped history [1 2 3], got %v", got)
	}
}

func TestBinaryOperatorAggregate_FoldsWrites(t *testing.T) {
	ch := NewBinaryOperatorAggregate(0, func(acc, w int) int { return acc + w })()
	v, ok, _ := ch.Read()
	if !ok || v.(int) != 0 {
		t.Fatalf("expected seed value visible before any write, got %v ok=%v", v, ok)
	}

	_, _ = ch.Update([]any{2, 5})
	v, _, _ = ch.Read()
	if v.(int) != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}

// P6: scoped acquisition happens exactly once and is released on every exit
// path.
func TestContextChannel_AcquireOnceReleaseOnce(t *testing.T) {
	acquireCount, releaseCount := 0, 0
	factory := NewContext(func(ctx context.Context) (string, func(), error) {
		acquireCount++
		return "resource", func() { releaseCount++ }, nil
	})

	ch := factory().(*ctxChannel[string])
	if err := ch.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	v, ok, err := ch.Read()
	if err != nil || !ok || v.(string) != "resource" {
		t.Fatalf("unexpected read: %v %v %v", v, ok, err)
	}
	if _, err := ch.Update([]any{"nope"}); !errors.Is(err, ErrNotWritable) {
		t.Fatalf("expected ErrNotWritable, got %v", err)
	}

	ch.releaseNow()
	ch.releaseNow() // not idempotent: each call invokes release again; the run loop calls it once per exit path

	if acquireCount != 1 {
		t.Fatalf("expected exactly one acquisition, got %d", acquireCount)
	}
	if releaseCount != 2 {
		t.Fatalf("expected release to have been invoked for each call, got %d", releaseCount)
	}
}

func TestContextChannel_AcquireFailureSurfacesOnRead(t *testing.T) {
	boom := errors.New("boom")
	factory := NewContext(func(ctx context.Context) (string, func(), error) {
		return "", nil, boom
	})

	ch := factory().(*ctxChannel[string])
	if err := ch.acquire(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, _, err := ch.Read(); !errors.Is(err, boom) {
		t.Fatalf("expected Read to surface the acquisition error, got %v", err)
	}
}
