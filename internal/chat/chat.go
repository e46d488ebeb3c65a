package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ask/internal/models"
	"ask/internal/provider"
	"ask/internal/reasoning"
	"ask/internal/request"
	"ask/internal/stream"
	"ask/internal/telemetry"
	"ask/internal/tokens"
)

// Sink receives answer fragments as they arrive.
type Sink interface {
	Write(fragment string) error
}

// Request is a single question to answer.
type Request struct {
	Model         string
	Messages      []models.Message
	Stream        bool
	Reasoning     reasoning.Effort
	ShowReasoning bool
	Budgets       request.Budgets
}

// Result summarises a finished exchange.
type Result struct {
	Model        string
	Content      string
	FinishReason string
	Usage        models.Usage
}

// Option configures a Service.
type Option func(*Service)

// WithChunkSize sets the read size used for streamed bodies.
func WithChunkSize(size int) Option {
	return func(s *Service) {
		s.chunkSize = size
	}
}

// WithRequestDump writes every outgoing request body to w.
func WithRequestDump(w io.Writer) Option {
	return func(s *Service) {
		s.dump = w
	}
}

// Service sends questions to a provider and relays the answer to a sink.
type Service struct {
	provider  provider.Provider
	estimator *tokens.Estimator
	logger    *slog.Logger
	chunkSize int
	dump      io.Writer
}

// New constructs a service backed by p.
func New(p provider.Provider, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		provider:  p,
		estimator: tokens.NewEstimator(),
		logger:    logger,
		chunkSize: stream.DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask builds the request body, sends it and writes the answer to sink. When
// the backend reports no usage, it is estimated locally.
func (s *Service) Ask(ctx context.Context, req Request, sink Sink) (*Result, error) {
	params := request.Params{
		Model:         req.Model,
		Messages:      req.Messages,
		Stream:        req.Stream,
		ShowReasoning: req.ShowReasoning,
		Budgets:       req.Budgets,
	}
	params.SetReasoningEffort(req.Reasoning)

	body, err := request.Build(params)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if err := s.dumpBody(body); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "ask.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("ask.model", body.Model),
		attribute.Bool("ask.stream", body.Stream),
		attribute.String("ask.reasoning", req.Reasoning.String()),
	)

	var result *Result
	if body.Stream {
		result, err = s.stream(ctx, body, sink)
	} else {
		result, err = s.complete(ctx, body, sink)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("ask.usage.prompt_tokens", result.Usage.PromptTokens),
		attribute.Int("ask.usage.completion_tokens", result.Usage.CompletionTokens),
		attribute.Bool("ask.usage.estimated", result.Usage.Estimated),
	)
	s.logger.Debug("answer complete",
		"model", result.Model,
		"total_tokens", result.Usage.TotalTokens,
		"estimated", result.Usage.Estimated,
	)
	return result, nil
}

func (s *Service) stream(ctx context.Context, body request.Body, sink Sink) (*Result, error) {
	rc, err := s.provider.Stream(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", body.Model, err)
	}
	defer rc.Close()

	dec := stream.NewDecoder(stream.WithLogger(s.logger))
	var answer strings.Builder
	for fragment := range dec.Fragments(stream.ReadChunks(rc, s.chunkSize)) {
		answer.WriteString(fragment)
		if err := sink.Write(fragment); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("stream %s: %w", body.Model, err)
	}

	result := &Result{Model: body.Model, Content: answer.String()}
	if usage := dec.Usage(); usage != nil {
		result.Usage = *usage
	} else {
		result.Usage = s.estimate(body, result.Content)
	}
	return result, nil
}

func (s *Service) complete(ctx context.Context, body request.Body, sink Sink) (*Result, error) {
	completion, err := s.provider.Complete(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", body.Model, err)
	}
	if err := sink.Write(completion.Content); err != nil {
		return nil, err
	}

	result := &Result{
		Model:        body.Model,
		Content:      completion.Content,
		FinishReason: completion.FinishReason,
		Usage:        completion.Usage,
	}
	if result.Usage.TotalTokens == 0 {
		result.Usage = s.estimate(body, result.Content)
	}
	return result, nil
}

func (s *Service) estimate(body request.Body, completion string) models.Usage {
	usage, err := s.estimator.Usage(body.Model, body.Messages, completion)
	if err != nil {
		s.logger.Warn("token estimate failed", "model", body.Model, "error", err)
		return models.Usage{Estimated: true}
	}
	return usage
}

func (s *Service) dumpBody(body request.Body) error {
	if s.dump == nil {
		return nil
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	if _, err := fmt.Fprintf(s.dump, "Request Body: %s\n", data); err != nil {
		return fmt.Errorf("write request body: %w", err)
	}
	return nil
}
