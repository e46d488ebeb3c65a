package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"ask/internal/models"
)

// Chat framing overhead, following OpenAI's published counting rules.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	assistantPriming = 3
)

// Estimator approximates token usage with tiktoken when the backend does not
// report it. Counts for non-OpenAI models are estimates only.
type Estimator struct {
	mu     sync.Mutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator returns an estimator with an empty codec cache.
func NewEstimator() *Estimator {
	return &Estimator{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// Usage estimates the usage of a single exchange.
func (e *Estimator) Usage(model string, messages []models.Message, completion string) (models.Usage, error) {
	codec, err := e.codec(model)
	if err != nil {
		return models.Usage{}, err
	}

	prompt := assistantPriming
	for _, msg := range messages {
		prompt += tokensPerMessage + tokensPerRole + count(codec, msg.Content)
	}
	completed := count(codec, completion)

	return models.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completed,
		TotalTokens:      prompt + completed,
		Estimated:        true,
	}, nil
}

func count(codec tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	ids, _, _ := codec.Encode(text)
	return len(ids)
}

func (e *Estimator) codec(model string) (tokenizer.Codec, error) {
	encoding := Encoding(model)

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.codecs[encoding]; ok {
		return cached, nil
	}
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", encoding, err)
	}
	e.codecs[encoding] = codec
	return codec, nil
}

// Encoding picks the tiktoken encoding for model. Unknown and non-OpenAI
// models use o200k_base.
func Encoding(model string) tokenizer.Encoding {
	model = strings.ToLower(strings.TrimSpace(model))

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "text-davinci"):
		return tokenizer.P50kBase
	case model == "davinci", model == "curie", model == "babbage", model == "ada":
		return tokenizer.R50kBase
	default:
		return tokenizer.O200kBase
	}
}
