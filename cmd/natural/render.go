package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"

	"natural/internal/implementer"
	"natural/internal/loader"
)

// render prints the implementation. Terminals get a glamour rendering with a
// short summary, anything else gets the plain Go source.
func render(w io.Writer, impl *implementer.Implementation) error {
	src, err := loader.Export(impl.Source, impl.Package)
	if err != nil {
		return err
	}
	if !isTerminal(w) {
		_, err := io.WriteString(w, src)
		return err
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		_, err := io.WriteString(w, src)
		return err
	}
	out, err := renderer.Render(summaryMarkdown(impl, src))
	if err != nil {
		return fmt.Errorf("failed to render implementation: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func summaryMarkdown(impl *implementer.Implementation, src string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", impl.QualifiedName)
	if impl.Cached {
		sb.WriteString("Reused a cached implementation.\n\n")
	} else {
		fmt.Fprintf(&sb, "Implemented in %d attempt(s).\n\n", impl.Attempts)
	}
	sb.WriteString("```go\n")
	sb.WriteString(strings.TrimRight(src, "\n"))
	sb.WriteString("\n```\n")
	return sb.String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
