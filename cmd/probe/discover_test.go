package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/discovery"
	"github.com/snow-ghost/probe/interp/goexec"
)

func sampleCatalog(t *testing.T) *core.Catalog {
	t.Helper()
	engine := discovery.NewEngine([]core.Provider{goexec.NewFrontend(nil)})
	cat, err := engine.Discover(context.Background(), "../../testdata/sample")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close(context.Background()) })
	return cat
}

func TestWriteCatalog(t *testing.T) {
	cat := sampleCatalog(t)

	var buf bytes.Buffer
	require.NoError(t, writeCatalog(&buf, cat, "text"))
	assert.Contains(t, buf.String(), "calc::Add(a int, b int) [function]")
	assert.Contains(t, buf.String(), "warning: ")

	buf.Reset()
	require.NoError(t, writeCatalog(&buf, cat, "json"))
	var doc struct {
		Entries []json.RawMessage `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Len(t, doc.Entries, len(cat.Entries))

	buf.Reset()
	require.NoError(t, writeCatalog(&buf, cat, "yaml"))
	assert.Contains(t, buf.String(), "qualifiedname: Add")

	assert.Error(t, writeCatalog(&buf, cat, "csv"))
}
