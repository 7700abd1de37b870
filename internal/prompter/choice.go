package prompter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"natural/internal/logging"
)

// MaxChoiceRetries bounds how often a malformed choice is re-asked.
const MaxChoiceRetries = 3

// ErrNoChoice is returned when the model never names a valid option.
var ErrNoChoice = errors.New("model did not choose a valid option")

// Option is one labelled answer the model may pick. Build turns the text the
// model writes after the label into the caller's decision value.
type Option[D any] struct {
	Label     string
	Condition string
	Action    string
	Effect    string
	Build     func(payload string) D
}

func (o Option[D]) describe() string {
	return fmt.Sprintf("- %s: write %q on the first line. %s. %s.", o.Condition, o.Label, o.Action, o.Effect)
}

// Choose asks the model to pick one of opts and returns the decision built
// from its answer.
func Choose[D any](ctx context.Context, p *Prompter, opts ...Option[D]) (D, error) {
	var zero D
	if len(opts) == 0 {
		return zero, errors.New("no options to choose from")
	}

	labels := make([]string, len(opts))
	var b strings.Builder
	b.WriteString("Choose exactly one of the following options:")
	for i, o := range opts {
		labels[i] = o.Label
		b.WriteString("\n")
		b.WriteString(o.describe())
	}
	p.Add(RoleUser, b.String())

	for try := 0; try <= MaxChoiceRetries; try++ {
		reply, err := p.Respond(ctx)
		if err != nil {
			return zero, err
		}
		label, payload, ok := parseChoice(reply, labels)
		if ok {
			for _, o := range opts {
				if o.Label == label {
					logging.APIDebug("[%s] model chose %q", p.id, label)
					return o.Build(payload), nil
				}
			}
		}
		logging.APIDebug("[%s] unparseable choice (try %d)", p.id, try+1)
		p.Add(RoleUser, fmt.Sprintf(
			"Your answer must start with one of %s on its own line, followed by the text the option asks for.",
			quoteAll(labels)))
	}
	return zero, fmt.Errorf("%w after %d retries", ErrNoChoice, MaxChoiceRetries)
}

// parseChoice reads the label from the first non-empty line of reply. The
// label may be decorated with markdown or followed by a colon and text.
func parseChoice(reply string, labels []string) (label, payload string, ok bool) {
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	first := 0
	for first < len(lines) && strings.TrimSpace(lines[first]) == "" {
		first++
	}
	if first == len(lines) {
		return "", "", false
	}

	head := strings.TrimFunc(lines[first], func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("*_`#>\"'.-", r)
	})
	rest := strings.Join(lines[first+1:], "\n")

	for _, l := range labels {
		if strings.EqualFold(head, l) {
			return l, strings.TrimSpace(rest), true
		}
		if len(head) > len(l) && strings.EqualFold(head[:len(l)], l) && head[len(l)] == ':' {
			inline := strings.TrimSpace(head[len(l)+1:])
			return l, strings.TrimSpace(inline + "\n" + rest), true
		}
	}
	return "", "", false
}

func quoteAll(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = fmt.Sprintf("%q", l)
	}
	return strings.Join(quoted, " or ")
}
