package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/probe/core"
)

var (
	batchFunc  string
	batchCount int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Generate and run a batch of cases against one callable",
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchFunc, "func", "", "callable id, list index or qualified name")
	batchCmd.Flags().IntVarP(&batchCount, "count", "n", 0, "number of cases (default from PROBE_BATCH_SIZE)")
	_ = batchCmd.MarkFlagRequired("func")
}

func runBatch(cmd *cobra.Command, _ []string) error {
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

	entry, err := sess.Catalog().Find(batchFunc)
	if err != nil {
		return err
	}
	count := a.Config.BatchSize
	if cmd.Flags().Changed("count") {
		count = batchCount
	}

	report, err := a.Runner().Run(cmd.Context(), sess, entry, count)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, rec := range report.Records {
		line, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(line))
	}
	sum := core.Summarize(report.Records)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d cases, %d succeeded, %d failed\n",
		report.Callable, sum.Total, sum.Successful, sum.Total-sum.Successful)
	return nil
}
