package core

import (
	"errors"
	"sort"
)

var (
	errMissingArgument    = errors.New("missing required argument")
	errUnexpectedArgument = errors.New("unexpected argument")
)

// Bind pairs args with the parameters of sig in declaration order.
// Omitted parameters with a default are bound to the default; a missing
// required parameter or a name sig does not declare is an *ArgumentError.
func Bind(sig Signature, args ArgumentSet) ([]BoundArg, error) {
	var unknown []string
	for name := range args {
		if _, ok := sig.Param(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ArgumentError{Param: unknown[0], Err: errUnexpectedArgument}
	}

	bound := make([]BoundArg, 0, len(sig.Params))
	for _, p := range sig.Params {
		v, ok := args[p.Name]
		switch {
		case ok:
			bound = append(bound, BoundArg{Param: p, Value: v, Present: true})
		case p.HasDefault:
			bound = append(bound, BoundArg{Param: p, Value: p.Default})
		default:
			return nil, &ArgumentError{Param: p.Name, Err: errMissingArgument}
		}
	}
	return bound, nil
}
