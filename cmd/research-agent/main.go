// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-agent CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/secrets"
	"github.com/pdiddy/research-agent/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, otherwise the secret value
// for key, otherwise the empty string.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the research-agent CLI.
var rootCmd = &cobra.Command{
	Use:   "research-agent",
	Short: "Autonomous research runs over external search and inference services",
	Long: `research-agent answers research questions end to end: it plans a
strategy, searches and scrapes sources, consolidates conflicting values,
verifies claims against the most authoritative sources, and compiles a
report. Outcomes are recorded in a local memory store so later runs on
similar questions start from what worked before.

The research subcommand runs the full lifecycle; wide fans a broad
question out into parallel sub-queries; memory inspects the outcome
store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./research-agent.yaml or ~/.config/research-agent/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-agent"))
		}
	}

	viper.SetEnvPrefix("RESEARCH_AGENT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the CLI logger. Verbose runs get development output.
func newLogger() (*zap.Logger, error) {
	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// buildConfig assembles the agent configuration from viper and secrets.
func buildConfig() types.AgentConfig {
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.user_agent", "research-agent/"+version)
	viper.SetDefault("executor.max_concurrency", 5)
	viper.SetDefault("memory.dir", filepath.Join("data", "memory"))
	viper.SetDefault("report.output_dir", "reports")

	return types.AgentConfig{
		Search: types.SearchServiceConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("search.timeout"),
				UserAgent: viper.GetString("search.user_agent"),
			},
			Endpoint:   viper.GetString("search.endpoint"),
			APIKey:     secretDefault("search-api-key", viper.GetString("search.api_key")),
			MaxResults: viper.GetInt("search.max_results"),
		},
		Inference: types.InferenceConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("inference.timeout"),
				UserAgent: viper.GetString("search.user_agent"),
			},
			Endpoint:   viper.GetString("inference.endpoint"),
			Model:      viper.GetString("inference.model"),
			APIKey:     secretDefault("inference-api-key", viper.GetString("inference.api_key")),
			MaxRetries: viper.GetInt("inference.max_retries"),
		},
		Executor: types.ExecutorConfig{
			MaxConcurrency: viper.GetInt("executor.max_concurrency"),
			DefaultTimeout: viper.GetDuration("executor.default_timeout"),
			DefaultRetries: viper.GetInt("executor.default_retries"),
		},
		Memory: types.MemoryConfig{
			Dir:              viper.GetString("memory.dir"),
			WindowSize:       viper.GetInt("memory.window_size"),
			MinDomainSamples: viper.GetInt("memory.min_domain_samples"),
		},
		Validation: types.ValidationConfig{
			FuzzyThreshold:   viper.GetFloat64("validation.fuzzy_threshold"),
			DefaultTolerance: viper.GetFloat64("validation.default_tolerance"),
		},
		Critic: types.CriticConfig{
			TopSources: viper.GetInt("critic.top_sources"),
			CacheSize:  viper.GetInt("critic.cache_size"),
		},
		Report: types.ReportConfig{
			OutputDir: viper.GetString("report.output_dir"),
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
