package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/probe/core"
)

var discoverFormat string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the callables and classes found under the source root",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverFormat, "format", "f", "text", "output format: text, json or yaml")
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	cat, err := a.Discover(cmd.Context(), a.Config.SourceRoot)
	if err != nil {
		return err
	}
	defer cat.Close(context.Background())

	return writeCatalog(cmd.OutOrStdout(), cat, discoverFormat)
}

func writeCatalog(w io.Writer, cat *core.Catalog, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cat)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(cat)
	case "text", "":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	fmt.Fprintf(w, "%d callables under %s\n", len(cat.Entries), cat.Root)
	for i, e := range cat.Entries {
		sig := e.Signature
		params := make([]string, 0, len(sig.Params))
		for _, p := range sig.Params {
			s := p.Name
			if p.TypeHint != "" {
				s += " " + p.TypeHint
			}
			if p.HasDefault {
				s += " = " + core.Render(p.Default)
			}
			params = append(params, s)
		}
		fmt.Fprintf(w, "%4d. %s(%s) [%s]\n", i+1, sig.ID(), strings.Join(params, ", "), sig.Kind)
	}
	for _, warn := range cat.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}
