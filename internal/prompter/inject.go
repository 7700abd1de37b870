package prompter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Injector lets an operator add a message before each model turn. An empty
// result injects nothing.
type Injector interface {
	Inject(ctx context.Context, transcript []Message) (string, error)
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(ctx context.Context, transcript []Message) (string, error)

func (f InjectorFunc) Inject(ctx context.Context, transcript []Message) (string, error) {
	return f(ctx, transcript)
}

// LineInjector reads one line per turn from r after writing a prompt to w.
type LineInjector struct {
	r *bufio.Reader
	w io.Writer
}

// NewLineInjector creates an Injector reading from r and prompting on w.
func NewLineInjector(r io.Reader, w io.Writer) *LineInjector {
	return &LineInjector{r: bufio.NewReader(r), w: w}
}

func (l *LineInjector) Inject(ctx context.Context, _ []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.w != nil {
		fmt.Fprint(l.w, "inject> ")
	}
	line, err := l.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
