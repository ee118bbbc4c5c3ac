// Package inference asks an external model service for plausible parameter values.
package inference

import (
	"context"
	"errors"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/pkg/limiter"
)

// ErrMalformed marks a response that could not be read as the expected JSON.
var ErrMalformed = errors.New("malformed inference response")

// ParamSpec describes one parameter to the service.
type ParamSpec struct {
	Name       string `json:"name"`
	TypeHint   string `json:"type"`
	HasDefault bool   `json:"has_default,omitempty"`
	Default    any    `json:"default,omitempty"`
}

// Request asks for values of some parameters of one callable.
type Request struct {
	Callable string      `json:"callable"`
	Kind     string      `json:"kind"`
	Doc      string      `json:"doc,omitempty"`
	Params   []ParamSpec `json:"params"`
}

// NewRequest builds a request for params of sig.
func NewRequest(sig core.Signature, params []core.Parameter) Request {
	req := Request{Callable: sig.ID(), Kind: sig.Kind.String(), Doc: sig.Doc}
	for _, p := range params {
		req.Params = append(req.Params, ParamSpec{Name: p.Name, TypeHint: p.TypeHint, HasDefault: p.HasDefault, Default: p.Default})
	}
	return req
}

// Suggestion is one proposed value and the model's reason for it.
type Suggestion struct {
	Value     any    `json:"value"`
	Rationale string `json:"rationale,omitempty"`
}

// Client is an external inference service. Infer may return suggestions for
// only some of the requested parameters.
type Client interface {
	Model() string
	Infer(ctx context.Context, req Request) (map[string]Suggestion, error)
}

// Reason classifies an inference failure for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, limiter.ErrRateLimited):
		return "rate_limited"
	case limiter.IsBreakerRejection(err):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "transport"
	}
}
