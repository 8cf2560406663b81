// Package staticllm answers every prompt with a fixed completion. It backs
// offline runs and tests where no LLM endpoint is reachable.
package staticllm

import (
	"context"
	"errors"
	"sync"
)

type Adapter struct {
	response string

	mu      sync.Mutex
	prompts []string
}

func New(response string) *Adapter {
	return &Adapter{response: response}
}

func (a *Adapter) Complete(ctx context.Context, prompt string, _ bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.response == "" {
		return "", errors.New("static llm: empty response configured")
	}
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	a.mu.Unlock()
	return a.response, nil
}

// Prompts returns every prompt received so far.
func (a *Adapter) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.prompts...)
}
