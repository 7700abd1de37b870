package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"natural/internal/prompter"
)

// newInjector returns a huh prompt on an interactive terminal and a line
// reader otherwise.
func newInjector(in io.Reader, out io.Writer) prompter.Injector {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return formInjector{}
	}
	return prompter.NewLineInjector(in, out)
}

// formInjector asks for the injected message with a multi-line text field.
type formInjector struct{}

func (formInjector) Inject(ctx context.Context, transcript []prompter.Message) (string, error) {
	var text string
	field := huh.NewText().
		Title("Message for the model").
		Description(lastTurn(transcript)).
		Placeholder("Leave empty to continue").
		Value(&text)
	err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// lastTurn summarizes the latest message so the operator knows what the
// model will answer next.
func lastTurn(transcript []prompter.Message) string {
	if len(transcript) == 0 {
		return ""
	}
	m := transcript[len(transcript)-1]
	line, _, _ := strings.Cut(strings.TrimSpace(m.Content), "\n")
	if len(line) > 72 {
		line = line[:72] + "..."
	}
	return string(m.Role) + ": " + line
}
