// Package mock is an offline inference.Client used in mock mode and in tests.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/snow-ghost/probe/inference"
)

// Client answers from parameter metadata alone: the declared default when there
// is one, else a fixed value for builtin type hints. Other parameters are left
// out of the reply.
type Client struct {
	mu       sync.Mutex
	err      error
	requests []inference.Request
}

// NewClient creates a new mock client
func NewClient() *Client {
	return &Client{}
}

// FailWith makes every later Infer call return err. A nil err restores normal replies.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Requests returns the requests seen so far.
func (c *Client) Requests() []inference.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]inference.Request(nil), c.requests...)
}

func (c *Client) Model() string { return "mock" }

func (c *Client) Infer(ctx context.Context, req inference.Request) (map[string]inference.Suggestion, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	err := c.err
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]inference.Suggestion, len(req.Params))
	for _, p := range req.Params {
		if p.HasDefault && p.Default != nil {
			out[p.Name] = inference.Suggestion{Value: p.Default, Rationale: "declared default"}
			continue
		}
		if v, ok := canned(p); ok {
			out[p.Name] = inference.Suggestion{Value: v, Rationale: "mock value for " + p.TypeHint}
		}
	}
	return out, nil
}

func canned(p inference.ParamSpec) (any, bool) {
	switch strings.TrimPrefix(p.TypeHint, "*") {
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64", "i32", "i64":
		return 7, true
	case "float32", "float64", "f32", "f64":
		return 7.5, true
	case "string":
		return "mock_" + p.Name, true
	case "bool":
		return true, true
	}
	return nil, false
}

var _ inference.Client = (*Client)(nil)
