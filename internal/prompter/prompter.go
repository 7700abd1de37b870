// Package prompter keeps a conversation with a generative model.
//
// A Prompter owns an append-only transcript. Respond asks the model for a
// free-form turn; Choose asks it to pick one of several labelled options and
// hand back the text that goes with the pick.
package prompter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"natural/internal/logging"
)

// Role is the author of a transcript message.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Model completes a conversation with the next assistant turn.
type Model interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, messages []Message) (string, error)

func (f ModelFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Options configures a Prompter.
type Options struct {
	// Log receives every message appended to the transcript. Nil disables it.
	Log io.Writer
	// ID tags log output. A random id is generated when empty.
	ID string
	// Injector, when set together with AllowInjections, is consulted before
	// every model turn.
	Injector        Injector
	AllowInjections bool
}

// Prompter drives one conversation.
type Prompter struct {
	model      Model
	transcript []Message
	log        io.Writer
	id         string
	injector   Injector
	inject     bool
}

// New creates a Prompter talking to model.
func New(model Model, opts Options) *Prompter {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()[:8]
	}
	return &Prompter{
		model:    model,
		log:      opts.Log,
		id:       id,
		injector: opts.Injector,
		inject:   opts.AllowInjections && opts.Injector != nil,
	}
}

// ID returns the conversation id.
func (p *Prompter) ID() string {
	return p.id
}

// Add appends messages with the given role. Empty messages are skipped.
func (p *Prompter) Add(role Role, messages ...string) *Prompter {
	for _, m := range messages {
		if m == "" {
			continue
		}
		p.append(Message{Role: role, Content: m})
	}
	return p
}

// Transcript returns a copy of the conversation so far.
func (p *Prompter) Transcript() []Message {
	out := make([]Message, len(p.transcript))
	copy(out, p.transcript)
	return out
}

// Respond requests the next assistant turn and appends it to the transcript.
func (p *Prompter) Respond(ctx context.Context) (string, error) {
	if p.inject {
		text, err := p.injector.Inject(ctx, p.Transcript())
		if err != nil {
			return "", fmt.Errorf("injection failed: %w", err)
		}
		if text = strings.TrimSpace(text); text != "" {
			p.Add(RoleUser, text)
		}
	}

	timer := logging.StartTimer(logging.CategoryAPI, "Complete")
	reply, err := p.model.Complete(ctx, p.Transcript())
	timer.Stop()
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyResponse
	}
	p.append(Message{Role: RoleAssistant, Content: reply})
	return reply, nil
}

func (p *Prompter) append(m Message) {
	p.transcript = append(p.transcript, m)
	if p.log != nil {
		if _, err := fmt.Fprintf(p.log, "[%s] %s:\n%s\n\n", p.id, m.Role, m.Content); err != nil {
			logging.APIDebug("Failed to write transcript log: %v", err)
		}
	}
}
