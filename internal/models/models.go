package models

// Message is a single role/content pair exchanged with the backend. Either
// field may be empty: streamed deltas often carry only one of them.
type Message struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Estimated is set when the counts were computed locally rather than
	// reported by the backend.
	Estimated bool `json:"-"`
}

// Completion is the result of a non-streaming request.
type Completion struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Model identifies a model advertised by the backend.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}
