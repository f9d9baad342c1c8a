// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agent/internal/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect the learning memory store",
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outcome counts and domain usefulness",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.OutcomeCount()
		if err != nil {
			return err
		}
		fmt.Printf("retained outcomes: %d\n", n)

		if domain, _ := cmd.Flags().GetString("domain"); domain != "" {
			usefulness, ok := store.DomainUsefulness(domain)
			if !ok {
				fmt.Printf("domain %s: never observed\n", domain)
				return nil
			}
			fmt.Printf("domain %s: usefulness %.2f\n", domain, usefulness)
		}
		return nil
	},
}

var memoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recent outcomes as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		outcomes, err := store.RecentOutcomes(limit)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(outcomes)
		if err != nil {
			return fmt.Errorf("encoding outcomes: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func openMemory() (*memory.Store, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return memory.NewStore(buildConfig().Memory, logger)
}

func init() {
	memoryStatsCmd.Flags().String("domain", "", "also show the usefulness of one domain")
	memoryExportCmd.Flags().Int("limit", 0, "number of outcomes to export (0 for the whole window)")

	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryExportCmd)
	rootCmd.AddCommand(memoryCmd)
}
