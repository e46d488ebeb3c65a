package prompt

import (
	"fmt"
	"io"
	"strings"

	"ask/internal/models"
)

const (
	stdinHeading    = "# STDIN"
	questionHeading = "# Question"

	// MaxStdinBytes bounds how much piped input is read.
	MaxStdinBytes = 1 << 20
)

// Format composes the user turn. Piped input, when it has any non-space
// content, is placed in its own section ahead of the question.
func Format(stdin, question string) string {
	if strings.TrimSpace(stdin) == "" {
		return question
	}

	var b strings.Builder
	b.Grow(len(stdin) + len(question) + len(stdinHeading) + len(questionHeading) + 6)
	b.WriteString(stdinHeading)
	b.WriteByte('\n')
	b.WriteString(strings.TrimRight(stdin, "\n"))
	b.WriteString("\n\n")
	b.WriteString(questionHeading)
	b.WriteByte('\n')
	b.WriteString(question)
	return b.String()
}

// Messages returns the conversation for a single question. The system
// message is included only when systemPrompt is non-empty.
func Messages(systemRole, systemPrompt, user string) []models.Message {
	msgs := make([]models.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, models.Message{Role: systemRole, Content: systemPrompt})
	}
	return append(msgs, models.Message{Role: "user", Content: user})
}

// ReadStdin reads piped input up to MaxStdinBytes.
func ReadStdin(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxStdinBytes+1))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if len(data) > MaxStdinBytes {
		return "", fmt.Errorf("stdin exceeds %d bytes", MaxStdinBytes)
	}
	return string(data), nil
}
