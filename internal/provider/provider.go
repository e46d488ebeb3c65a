package provider

import (
	"context"
	"errors"
	"io"

	"ask/internal/models"
	"ask/internal/request"
)

// ErrUnknownModel indicates the requested model is not advertised upstream.
var ErrUnknownModel = errors.New("unknown model")

// ErrUnsupportedOperation indicates the provider cannot fulfill the requested action.
var ErrUnsupportedOperation = errors.New("unsupported provider operation")

// Provider defines the behaviour required to serve a single chat request.
type Provider interface {
	Complete(ctx context.Context, body request.Body) (*models.Completion, error)
	Stream(ctx context.Context, body request.Body) (io.ReadCloser, error)
}

// ModelLister is implemented by providers that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]models.Model, error)
	CheckModel(ctx context.Context, id string) error
}
