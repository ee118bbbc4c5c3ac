package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder represents a token encoder for a specific model
type Encoder interface {
	Count(text string) (int, error)
	// Truncate cuts text to at most max tokens.
	Truncate(text string, max int) (string, error)
}

// TiktokenEncoder implements Encoder using tiktoken-go
type TiktokenEncoder struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEncoder creates a new tiktoken encoder
func NewTiktokenEncoder(encodingName string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}

	return &TiktokenEncoder{
		encoding: encoding,
	}, nil
}

// NewTiktokenEncoderForModel picks the encoding tiktoken associates with model.
func NewTiktokenEncoderForModel(model string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for model %s: %w", model, err)
	}
	return &TiktokenEncoder{encoding: encoding}, nil
}

// Count returns the number of tokens in text
func (e *TiktokenEncoder) Count(text string) (int, error) {
	tokens := e.encoding.Encode(text, nil, nil)
	return len(tokens), nil
}

func (e *TiktokenEncoder) Truncate(text string, max int) (string, error) {
	if max <= 0 {
		return "", nil
	}
	tokens := e.encoding.Encode(text, nil, nil)
	if len(tokens) <= max {
		return text, nil
	}
	return e.encoding.Decode(tokens[:max]), nil
}

// MockEncoder implements Encoder with simple character-based counting
type MockEncoder struct{}

// NewMockEncoder creates a new mock encoder
func NewMockEncoder() *MockEncoder {
	return &MockEncoder{}
}

// Count returns the number of tokens in text (character-based)
func (e *MockEncoder) Count(text string) (int, error) {
	// Simple estimation: ~4 characters per token
	count := len(text) / 4
	if count < 1 {
		count = 1
	}
	return count, nil
}

// Truncate keeps about four characters per token, cutting on a rune boundary.
func (e *MockEncoder) Truncate(text string, max int) (string, error) {
	if max <= 0 {
		return "", nil
	}
	limit := max * 4
	if len(text) <= limit {
		return text, nil
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, nil
	}
	return string(runes[:limit]), nil
}

// EncoderRegistry manages model-to-encoder mappings. Encoders are built on
// first use; models tiktoken cannot serve get the character estimate.
type EncoderRegistry struct {
	mu       sync.Mutex
	encoders map[string]Encoder
	fallback Encoder
	build    func(model string) (Encoder, error)
}

// NewEncoderRegistry creates a registry that resolves encoders through tiktoken.
func NewEncoderRegistry() *EncoderRegistry {
	return &EncoderRegistry{
		encoders: make(map[string]Encoder),
		fallback: NewMockEncoder(),
		build: func(model string) (Encoder, error) {
			if enc, err := NewTiktokenEncoderForModel(model); err == nil {
				return enc, nil
			}
			return NewTiktokenEncoder("cl100k_base")
		},
	}
}

// NewOfflineRegistry never loads tiktoken data; every model gets the estimate.
func NewOfflineRegistry() *EncoderRegistry {
	r := NewEncoderRegistry()
	r.build = nil
	return r
}

// RegisterEncoder registers an encoder for a model
func (r *EncoderRegistry) RegisterEncoder(modelID string, encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[modelID] = encoder
}

// GetEncoder returns the encoder for a model, or fallback if none can be built
func (r *EncoderRegistry) GetEncoder(modelID string) Encoder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if encoder, exists := r.encoders[modelID]; exists {
		return encoder
	}
	if r.build == nil {
		return r.fallback
	}
	encoder, err := r.build(modelID)
	if err != nil {
		encoder = r.fallback
	}
	r.encoders[modelID] = encoder
	return encoder
}

// CountTokens counts tokens in text using the appropriate encoder
func (r *EncoderRegistry) CountTokens(modelID, text string) (int, error) {
	return r.GetEncoder(modelID).Count(text)
}

// Truncate cuts text to the token budget of modelID, falling back to the
// character estimate when the model's encoder fails.
func (r *EncoderRegistry) Truncate(modelID, text string, max int) string {
	out, err := r.GetEncoder(modelID).Truncate(text, max)
	if err != nil {
		out, _ = r.fallback.Truncate(text, max)
	}
	return out
}
