package render

import (
	"fmt"
	"io"
	"strings"

	"ask/internal/models"
)

// Renderer writes the answer to out as it arrives and diagnostics to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer

	wrote       bool
	lastNewline bool
}

// New returns a renderer writing to out and errOut.
func New(out, errOut io.Writer) *Renderer {
	return &Renderer{out: out, errOut: errOut}
}

// Write emits one fragment immediately. Empty fragments are ignored.
func (r *Renderer) Write(fragment string) error {
	if fragment == "" {
		return nil
	}
	if _, err := io.WriteString(r.out, fragment); err != nil {
		return fmt.Errorf("write answer: %w", err)
	}
	r.wrote = true
	r.lastNewline = strings.HasSuffix(fragment, "\n")
	return nil
}

// Finish terminates the answer with a newline if it does not already end
// with one.
func (r *Renderer) Finish() error {
	if !r.wrote || r.lastNewline {
		return nil
	}
	if _, err := io.WriteString(r.out, "\n"); err != nil {
		return fmt.Errorf("write answer: %w", err)
	}
	r.lastNewline = true
	return nil
}

// Usage prints the token usage line.
func (r *Renderer) Usage(model string, usage models.Usage) error {
	line := fmt.Sprintf("[%s] tokens: prompt=%d completion=%d total=%d",
		model, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	if usage.Estimated {
		line += " (estimated)"
	}
	if _, err := fmt.Fprintln(r.errOut, line); err != nil {
		return fmt.Errorf("write usage: %w", err)
	}
	return nil
}
