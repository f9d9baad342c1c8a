// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/agent"
	"github.com/pdiddy/research-agent/internal/executor"
	"github.com/pdiddy/research-agent/internal/fetch"
	"github.com/pdiddy/research-agent/internal/memory"
	"github.com/pdiddy/research-agent/internal/report"
	"github.com/pdiddy/research-agent/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Run the full research lifecycle for one query",
	Long: `Research plans a strategy for the query, gathers and scrapes sources,
consolidates conflicting values, verifies claims, and writes a YAML and
Markdown report to the output directory. The run outcome is recorded in
the memory store.`,
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

		r, runErr := a.Run(ctx, query)
		if show {
			fmt.Print(report.RenderMarkdown(r))
		} else {
			fmt.Println(r.Summary)
		}
		if runErr != nil {
			return fmt.Errorf("research run %s: %w", r.RunID, runErr)
		}
		return nil
	},
}

func init() {
	researchCmd.Flags().Duration("timeout", 5*time.Minute, "overall run budget (0 for none)")
	researchCmd.Flags().String("output", "", "report output directory (overrides config)")
	researchCmd.Flags().Bool("print", false, "print the rendered Markdown report to stdout")
	researchCmd.Flags().String("metrics-listen", "", "serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(researchCmd)
}

// buildAgent wires the agent from configuration. The returned cleanup
// closes the memory store and flushes the logger.
func buildAgent(cmd *cobra.Command) (*agent.Agent, func(), error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	cfg := buildConfig()
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		cfg.Report.OutputDir = out
	}

	search, err := fetch.NewSearchClient(cfg.Search, logger)
	if err != nil {
		return nil, nil, err
	}

	var inference types.InferenceService
	if cfg.Inference.Endpoint != "" {
		client, err := fetch.NewInferenceClient(cfg.Inference, logger)
		if err != nil {
			return nil, nil, err
		}
		inference = client
	}

	var mem agent.MemoryStore
	var store *memory.Store
	if cfg.Memory.Dir != "" {
		store, err = memory.NewStore(cfg.Memory, logger)
		if err != nil {
			logger.Warn("memory store unavailable, running without learning", zap.Error(err))
		} else {
			mem = store
		}
	}

	var collector *executor.Collector
	if addr, _ := cmd.Flags().GetString("metrics-listen"); addr != "" {
		reg := prometheus.NewRegistry()
		collector = executor.NewCollector(reg, "research_agent")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if serveErr := http.ListenAndServe(addr, mux); serveErr != nil {
				fmt.Fprintf(os.Stderr, "metrics listener stopped: %v\n", serveErr)
			}
		}()
	}

	a := agent.New(cfg, search, inference, mem, collector, logger)
	cleanup := func() {
		if store != nil {
			store.Close()
		}
		_ = logger.Sync()
	}
	return a, cleanup, nil
}
