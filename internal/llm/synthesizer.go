// Package llm wraps the text generation backends used for question synthesis.
package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ollama/ollama/api"

	"exampaper-rag/internal/apperr"
)

// Synthesizer turns a prompt into raw generated text
type Synthesizer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// classify maps a backend error onto the pipeline's error kinds
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.Internal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.UpstreamTimeout, err)
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return apperr.New(apperr.Cancelled, err)
	}

	var se api.StatusError
	if errors.As(err, &se) {
		return apperr.New(kindForStatus(se.StatusCode), err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return apperr.New(apperr.UpstreamTimeout, err)
	}
	// Anything else is a transport failure: refused, reset or DNS.
	return apperr.New(apperr.UpstreamUnavailable, err)
}

// kindForStatus treats 5xx and 429 as transient and other 4xx as a bad request
func kindForStatus(code int) apperr.Kind {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return apperr.UpstreamTimeout
	case code == http.StatusTooManyRequests, code >= 500:
		return apperr.UpstreamUnavailable
	default:
		return apperr.MalformedRequest
	}
}
