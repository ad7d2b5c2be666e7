package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/digest/core"
	"github.com/tmc/langchaingo/llms"
)

var (
	// ErrEmptyResponse indicates the provider answered without any content.
	ErrEmptyResponse = errors.New("provider returned an empty response")

	// ErrUnknownProvider indicates a provider type with no implementation.
	ErrUnknownProvider = errors.New("unknown ai provider")
)

// ClassifyError maps a provider error to the transient/permanent taxonomy.
// The mapper normalizes provider specific failures into langchaingo error codes.
// Cancellation is returned unchanged; callers treat it as permanent.
func ClassifyError(mapper *llms.ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrTransientProvider) || errors.Is(err, core.ErrPermanentProvider) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	wrapped := mapper.WrapError(err)
	var llmErr *llms.Error
	if !errors.As(wrapped, &llmErr) {
		return fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
	}

	switch llmErr.Code {
	case llms.ErrCodeCanceled:
		return fmt.Errorf("%w: %w", context.Canceled, wrapped)
	case llms.ErrCodeAuthentication,
		llms.ErrCodeInvalidRequest,
		llms.ErrCodeResourceNotFound,
		llms.ErrCodeQuotaExceeded,
		llms.ErrCodeContentFilter,
		llms.ErrCodeTokenLimit,
		llms.ErrCodeNotImplemented:
		return fmt.Errorf("%w: %w", core.ErrPermanentProvider, wrapped)
	default:
		// rate limits, timeouts, unavailable services and anything unrecognised
		return fmt.Errorf("%w: %w", core.ErrTransientProvider, wrapped)
	}
}
