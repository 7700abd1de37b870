package llm

import (
	"context"
	"fmt"
	"sync"

	"natural/internal/prompter"
)

// Reply configures one turn of a Scripted model.
type Reply struct {
	Text string
	Err  error
}

// Scripted is a deterministic model replaying fixed replies in order.
type Scripted struct {
	mu       sync.Mutex
	index    int
	replies  []Reply
	requests [][]prompter.Message
}

var _ prompter.Model = (*Scripted)(nil)

// NewScripted returns a model answering with texts in order.
func NewScripted(texts ...string) *Scripted {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return NewScriptedReplies(replies...)
}

// NewScriptedReplies returns a model replaying replies in order.
func NewScriptedReplies(replies ...Reply) *Scripted {
	cloned := make([]Reply, len(replies))
	copy(cloned, replies)
	return &Scripted{replies: cloned}
}

func (m *Scripted) Complete(ctx context.Context, messages []prompter.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	seen := make([]prompter.Message, len(messages))
	copy(seen, messages)
	m.requests = append(m.requests, seen)

	if m.index >= len(m.replies) {
		return "", fmt.Errorf("script exhausted at step %d", m.index+1)
	}
	current := m.replies[m.index]
	m.index++
	return current.Text, current.Err
}

// Calls returns how many completions were requested.
func (m *Scripted) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns the transcripts the model was asked to complete.
func (m *Scripted) Requests() [][]prompter.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]prompter.Message, len(m.requests))
	copy(out, m.requests)
	return out
}
