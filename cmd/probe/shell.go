package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/probe/shell"
)

var exportPath string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Test callables interactively in the terminal",
	RunE:  runShell,
}

func init() {
	shellCmd.Flags().StringVar(&exportPath, "export", "", "write the session log as JSON to this file on exit")
}

func runShell(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	sess, err := a.OpenSession(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close(context.Background())

	sh := shell.New(sess, a.Runner(), cmd.InOrStdin(), cmd.OutOrStdout(), a.Config.BatchSize)
	runErr := sh.Run(cmd.Context())
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return errors.Join(runErr, err)
		}
		defer f.Close()
		if err := sess.Export(f, "json"); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}
