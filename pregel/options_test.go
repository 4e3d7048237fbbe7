package pregel

import (
	"testing"
	"time"

	"github.com/flowstate/pregel/checkpoint"
)

func TestOptions_EachOptionSetsItsField(t *testing.T) {
	store := checkpoint.NewMemStore()
	cfg := &graphConfig{}

	opts := []Option{
		WithCheckpointer(store),
		WithRecursionLimit(50),
		WithMaxConcurrentNodes(4),
		WithDefaultNodeTimeout(time.Second),
		WithInputChannels("seed"),
		WithOutputChannels("result"),
		WithInterrupt("review"),
	}
	for _, o := range opts {
		if err := o(cfg); err != nil {
			t.Fatalf("unexpected option error: %v", err)
		}
	}

	if cfg.opts.Checkpointer != store {
		t.Fatal("expected the checkpointer to be set")
	}
	if cfg.opts.RecursionLimit != 50 {
		t.Fatalf("expected recursion limit 50, got %d", cfg.opts.RecursionLimit)
	}
	if cfg.opts.MaxConcurrentNodes != 4 {
		t.Fatalf("expected max concurrent nodes 4, got %d", cfg.opts.MaxConcurrentNodes)
	}
	if cfg.opts.DefaultNodeTimeout != time.Second {
		t.Fatalf("expected default node timeout 1s, got %v", cfg.opts.DefaultNodeTimeout)
	}
	if len(cfg.opts.InputChannels) != 1 || cfg.opts.InputChannels[0] != "seed" {
		t.Fatalf("expected input channels [seed], got %v", cfg.opts.InputChannels)
	}
	if len(cfg.opts.OutputChannels) != 1 || cfg.opts.OutputChannels[0] != "result" {
		t.Fatalf("expected output channels [result], got %v", cfg.opts.OutputChannels)
	}
	if len(cfg.opts.Interrupt) != 1 || cfg.opts.Interrupt[0] != "review" {
		t.Fatalf("expected interrupt [review], got %v", cfg.opts.Interrupt)
	}
}

func TestWithRecursionLimit_RejectsNegative(t *testing.T) {
	cfg := &graphConfig{}
	err := WithRecursionLimit(-1)(cfg)
	if err == nil {
		t.Fatal("expected an error for a negative recursion limit")
	}
}

func TestOptions_LaterCallOverridesEarlier(t *testing.T) {
	cfg := &graphConfig{}
	WithRecursionLimit(10)(cfg)
	WithRecursionLimit(20)(cfg)
	if cfg.opts.RecursionLimit != 20 {
		t.Fatalf("expected the later call to win, got %d", cfg.opts.RecursionLimit)
	}
}
