// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-agent/internal/report"
)

var wideCmd = &cobra.Command{
	Use:   "wide <query>",
	Short: "Answer a broad query through parallel sub-queries",
	Long: `Wide decomposes a broad question into independent sub-queries, runs
them in parallel with bounded concurrency, and aggregates the
deduplicated results into one report. Use it for survey-style questions
where a single search would be too narrow.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		show, _ := cmd.Flags().GetBool("print")

		a, cleanup, err := buildAgent(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		r, err := a.RunWide(ctx, query)
		if err != nil {
			return fmt.Errorf("wide run: %w", err)
		}
		if show {
			fmt.Print(report.RenderMarkdown(r))
		} else {
			fmt.Println(r.Summary)
		}
		return nil
	},
}

func init() {
	wideCmd.Flags().Duration("timeout", 10*time.Minute, "overall run budget (0 for none)")
	wideCmd.Flags().String("output", "", "report output directory (overrides config)")
	wideCmd.Flags().Bool("print", false, "print the rendered Markdown report to stdout")
	wideCmd.Flags().String("metrics-listen", "", "serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(wideCmd)
}
