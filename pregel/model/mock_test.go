package model

import (
	"context"
	"errors"
	"testing"
)

func TestMockChatModel_RepeatsLastResponse(t *testing.T) {
	m := &MockChatModel{Responses: []ChatOut{{Text: "first"}, {Text: "second"}}}

	out1, _ := m.Chat(context.Background(), nil, nil)
	out2, _ := m.Chat(context.Background(), nil, nil)
	out3, _ := m.Chat(context.Background(), nil, nil)

	if out1.Text != "first" || out2.Text != "second" || out3.Text != "second" {
		t.Fatalf("expected first, second, second; got %q %q %q", out1.Text, out2.Text, out3.Text)
	}
	if m.CallCount() != 3 {
		t.Fatalf("expected 3 recorded calls, got %d", m.CallCount())
	}
}

func TestMockChatModel_ReturnsConfiguredError(t *testing.T) {
	wantErr := errors.New("boom")
	m := &MockChatModel{Err: wantErr}
	_, err := m.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the configured error, got %v", err)
	}
}

func TestMockChatModel_ResetClearsHistory(t *testing.T) {
	m := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}
	m.Chat(context.Background(), nil, nil)
	m.Reset()
	if m.CallCount() != 0 {
		t.Fatalf("expected call count 0 after Reset, got %d", m.CallCount())
	}
}

func TestMockChatModel_ContextCanceledShortCircuits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}
	_, err := m.Chat(ctx, nil, nil)
	if err == nil {
		t.Fatal("expected a context-canceled error")
	}
	if m.CallCount() != 0 {
		t.Fatalf("expected the canceled call not to be recorded, got %d", m.CallCount())
	}
}
