package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/probe/inference"
)

func TestClient_Infer(t *testing.T) {
	client := NewClient()
	req := inference.Request{
		Callable: "people::NewPerson",
		Params: []inference.ParamSpec{
			{Name: "name", TypeHint: "string"},
			{Name: "age", TypeHint: "int"},
			{Name: "email", TypeHint: "string", HasDefault: true, Default: "a@example.com"},
			{Name: "home", TypeHint: "*Address"},
		},
	}

	out, err := client.Infer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "mock_name", out["name"].Value)
	assert.Equal(t, 7, out["age"].Value)
	assert.Equal(t, "a@example.com", out["email"].Value)
	assert.NotContains(t, out, "home")
	assert.Equal(t, "mock", client.Model())
	assert.Len(t, client.Requests(), 1)
}

func TestClient_FailWith(t *testing.T) {
	client := NewClient()
	boom := errors.New("boom")
	client.FailWith(boom)

	_, err := client.Infer(context.Background(), inference.Request{})
	assert.ErrorIs(t, err, boom)

	client.FailWith(nil)
	_, err = client.Infer(context.Background(), inference.Request{})
	assert.NoError(t, err)
	assert.Len(t, client.Requests(), 2)
}
