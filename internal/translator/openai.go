package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"ask/internal/models"
)

var (
	// ErrMalformedResponse indicates a response body that does not match the
	// chat completion shape.
	ErrMalformedResponse = errors.New("malformed response")

	errInvalidContent = errors.New("invalid message content")
)

// ChatMessage is a message or delta as sent by OpenAI-compatible backends.
// Content may be a string, an array of text segments or null.
type ChatMessage struct {
	Role    string
	Content string
}

// UnmarshalJSON supports string, array-of-text and null content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = strings.TrimSpace(raw.Role)
	m.Content = content
	return nil
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				continue
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}

// ChatChoice covers chat messages, streamed deltas and legacy completion
// text in a single shape.
type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	Text         string       `json:"text,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

func (c ChatChoice) content() string {
	switch {
	case c.Delta != nil && c.Delta.Content != "":
		return c.Delta.Content
	case c.Message != nil && c.Message.Content != "":
		return c.Message.Content
	default:
		return c.Text
	}
}

// OpenAIUsage mirrors the token usage block in OpenAI responses.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *OpenAIUsage) toModel() models.Usage {
	if u == nil {
		return models.Usage{}
	}
	return models.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// ChatCompletionResponse models a complete, non-streamed response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *OpenAIUsage `json:"usage,omitempty"`
}

// ChatCompletionChunk models one streamed data line.
type ChatCompletionChunk struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *OpenAIUsage `json:"usage,omitempty"`
}

// Content returns the text carried by the first choice, if any.
func (c ChatCompletionChunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].content()
}

// UsageRecord returns the usage record if the chunk carries one.
func (c ChatCompletionChunk) UsageRecord() (models.Usage, bool) {
	if c.Usage == nil {
		return models.Usage{}, false
	}
	return c.Usage.toModel(), true
}

// DecodeChunk parses the payload of a single data line.
func DecodeChunk(data []byte) (ChatCompletionChunk, error) {
	var chunk ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return ChatCompletionChunk{}, fmt.Errorf("decode chunk: %w", err)
	}
	if len(chunk.Choices) == 0 && chunk.Usage == nil {
		return ChatCompletionChunk{}, errors.New("chunk has neither choices nor usage")
	}
	return chunk, nil
}

// DecodeChatResponse parses a complete chat or legacy completion response.
func DecodeChatResponse(r io.Reader) (*models.Completion, error) {
	var resp ChatCompletionResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response did not include choices", ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	return &models.Completion{
		Content:      choice.content(),
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage.toModel(),
	}, nil
}

// ModelList is the body of GET /models.
type ModelList struct {
	Object string         `json:"object"`
	Data   []models.Model `json:"data"`
}

// DecodeModelList parses a model listing.
func DecodeModelList(r io.Reader) ([]models.Model, error) {
	var list ModelList
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return list.Data, nil
}
