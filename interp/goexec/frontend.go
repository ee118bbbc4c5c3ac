package goexec

import (
	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/discovery/gosource"
	"github.com/snow-ghost/probe/pkg/logging"
)

// Language is the catalog language tag of Go callables.
const Language = gosource.Language

// Frontend is the Go discovery provider: tree-sitter parsing plus a yaegi runtime.
type Frontend struct {
	*gosource.Parser
	logger *logging.Logger
}

func NewFrontend(logger *logging.Logger) *Frontend {
	return &Frontend{Parser: gosource.NewParser(), logger: logging.OrNop(logger)}
}

func (f *Frontend) NewRuntime(modules map[string][]core.SourceFile) core.Runtime {
	return NewRuntime(f.Parser, modules, f.logger)
}

var _ core.Provider = (*Frontend)(nil)
