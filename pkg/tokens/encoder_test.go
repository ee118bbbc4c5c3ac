package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEncoder_Count(t *testing.T) {
	encoder := NewMockEncoder()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "empty string", text: "", expected: 1},
		{name: "short text", text: "Hello", expected: 1},
		{name: "medium text", text: "This is a test message", expected: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := encoder.Count(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, count)
		})
	}
}

func TestMockEncoder_Truncate(t *testing.T) {
	encoder := NewMockEncoder()

	out, err := encoder.Truncate("short", 10)
	require.NoError(t, err)
	assert.Equal(t, "short", out)

	out, err = encoder.Truncate(strings.Repeat("a", 100), 5)
	require.NoError(t, err)
	assert.Len(t, out, 20)

	out, err = encoder.Truncate(strings.Repeat("é", 30), 5)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 20), out)

	out, err = encoder.Truncate("anything", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEncoderRegistry_Offline(t *testing.T) {
	r := NewOfflineRegistry()
	_, ok := r.GetEncoder("gpt-4o-mini").(*MockEncoder)
	assert.True(t, ok)

	n, err := r.CountTokens("gpt-4o-mini", strings.Repeat("x", 40))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Len(t, r.Truncate("gpt-4o-mini", strings.Repeat("x", 40), 2), 8)
}

type fixedEncoder struct{ n int }

func (f fixedEncoder) Count(string) (int, error) { return f.n, nil }
func (f fixedEncoder) Truncate(text string, max int) (string, error) {
	return text[:max], nil
}

func TestEncoderRegistry_Register(t *testing.T) {
	r := NewOfflineRegistry()
	r.RegisterEncoder("custom", fixedEncoder{n: 42})

	n, err := r.CountTokens("custom", "whatever")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, "wh", r.Truncate("custom", "whatever", 2))
}
