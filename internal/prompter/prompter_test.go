package prompter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// script replies with the given turns in order and records what it saw.
type script struct {
	replies []string
	seen    [][]Message
}

func (s *script) Complete(_ context.Context, messages []Message) (string, error) {
	s.seen = append(s.seen, messages)
	if len(s.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

type decision struct {
	label   string
	payload string
}

func options() []Option[decision] {
	return []Option[decision]{
		{
			Label:     "implement",
			Condition: "If you have found an implementation",
			Action:    "Write your implementation",
			Effect:    "I will give you feedback",
			Build:     func(s string) decision { return decision{"implement", s} },
		},
		{
			Label:     "impossible",
			Condition: "If the function can not be implemented",
			Action:    "Write your reason",
			Effect:    "I will give you feedback",
			Build:     func(s string) decision { return decision{"impossible", s} },
		},
	}
}

func TestRespondAppendsTranscript(t *testing.T) {
	var log bytes.Buffer
	model := &script{replies: []string{"thinking"}}
	p := New(model, Options{Log: &log, ID: "run1"})

	p.Add(RoleDeveloper, "be helpful").Add(RoleUser, "hello", "")
	reply, err := p.Respond(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thinking", reply)

	assert.Equal(t, []Message{
		{RoleDeveloper, "be helpful"},
		{RoleUser, "hello"},
		{RoleAssistant, "thinking"},
	}, p.Transcript())
	require.Len(t, model.seen, 1)
	assert.Len(t, model.seen[0], 2)

	assert.Contains(t, log.String(), "[run1] developer:\nbe helpful")
	assert.Contains(t, log.String(), "[run1] assistant:\nthinking")
}

func TestRespondErrors(t *testing.T) {
	p := New(&script{replies: []string{"  "}}, Options{})
	_, err := p.Respond(context.Background())
	assert.ErrorIs(t, err, ErrEmptyResponse)

	p = New(&script{}, Options{})
	_, err = p.Respond(context.Background())
	assert.ErrorContains(t, err, "model request failed")
	assert.Empty(t, p.Transcript())
}

func TestGeneratedID(t *testing.T) {
	p := New(&script{}, Options{})
	assert.Len(t, p.ID(), 8)
}

func TestChoose(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  decision
	}{
		{"label line", "implement\nfunc F() {}", decision{"implement", "func F() {}"}},
		{"decorated label", "**Impossible**\n\nno input can work", decision{"impossible", "no input can work"}},
		{"inline payload", "impossible: it would solve the halting problem", decision{"impossible", "it would solve the halting problem"}},
		{"case insensitive", "IMPLEMENT\n```go\nfunc F() {}\n```", decision{"implement", "```go\nfunc F() {}\n```"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&script{replies: []string{tt.reply}}, Options{})
			got, err := Choose(context.Background(), p, options()...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			tr := p.Transcript()
			require.Len(t, tr, 2)
			assert.Contains(t, tr[0].Content, `write "implement" on the first line`)
			assert.Equal(t, RoleAssistant, tr[1].Role)
		})
	}
}

func TestChooseRetries(t *testing.T) {
	model := &script{replies: []string{"maybe?", "implement\nfunc F() {}"}}
	p := New(model, Options{})
	got, err := Choose(context.Background(), p, options()...)
	require.NoError(t, err)
	assert.Equal(t, "implement", got.label)

	tr := p.Transcript()
	require.Len(t, tr, 4)
	assert.Contains(t, tr[2].Content, `"implement" or "impossible"`)
}

func TestChooseGivesUp(t *testing.T) {
	replies := make([]string, MaxChoiceRetries+1)
	for i := range replies {
		replies[i] = "I am not sure"
	}
	_, err := Choose(context.Background(), New(&script{replies: replies}, Options{}), options()...)
	assert.ErrorIs(t, err, ErrNoChoice)
}

func TestInjections(t *testing.T) {
	model := &script{replies: []string{"ok", "ok"}}
	calls := 0
	injector := InjectorFunc(func(_ context.Context, tr []Message) (string, error) {
		calls++
		if calls == 1 {
			return "use a loop", nil
		}
		return "", nil
	})

	p := New(model, Options{Injector: injector, AllowInjections: true})
	_, err := p.Respond(context.Background())
	require.NoError(t, err)
	_, err = p.Respond(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	tr := p.Transcript()
	require.Len(t, tr, 3)
	assert.Equal(t, Message{RoleUser, "use a loop"}, tr[0])

	disabled := New(&script{replies: []string{"ok"}}, Options{Injector: injector})
	_, err = disabled.Respond(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLineInjector(t *testing.T) {
	var prompt bytes.Buffer
	inj := NewLineInjector(strings.NewReader("first\n\nlast"), &prompt)

	for _, want := range []string{"first", "", "last", ""} {
		got, err := inj.Inject(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, strings.Repeat("inject> ", 4), prompt.String())
}
