package staticllm

import (
	"context"
	"testing"
)

func TestComplete_ReturnsFixedResponseAndRecordsPrompt(t *testing.T) {
	a := New(`{"scene":"chat","confidence":0.5}`)
	got, err := a.Complete(context.Background(), "p1", true)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != `{"scene":"chat","confidence":0.5}` {
		t.Fatalf("unexpected response %q", got)
	}
	if p := a.Prompts(); len(p) != 1 || p[0] != "p1" {
		t.Fatalf("unexpected prompts %v", p)
	}
}

func TestComplete_Errors(t *testing.T) {
	if _, err := New("").Complete(context.Background(), "p", false); err == nil {
		t.Fatalf("expected error for empty response")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New("x").Complete(ctx, "p", false); err == nil {
		t.Fatalf("expected context error")
	}
}
