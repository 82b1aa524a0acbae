package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/syncer"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync a saved classification result to the storefront",
		Long: `Sync reads a result file produced by "classify --output" and mirrors it
onto the storefront as collections. Re-running a sync is safe: existing
collections are reused and existing memberships are left alone.`,
		RunE: runSync,
	}

	addStoreFlags(cmd)
	cmd.Flags().StringP("input", "i", "", "classification result file (required)")
	cmd.Flags().String("sync-mode", "", "collection mode (manual, smart)")
	cmd.Flags().Bool("dry-run", false, "print what would change without touching the store")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	input, _ := cmd.Flags().GetString("input")
	raw, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read result file: %w", err)
	}

	var result resultFile
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to parse result file: %w", err)
	}
	if result.Partition == nil || len(result.Products) == 0 {
		return fmt.Errorf("%w: result file has no classification to sync", common.ErrInvalidConfig)
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cmd.Printf("Would sync %d products into %d collections on %s:\n",
			result.Partition.Total(), len(result.Partition.Names()), result.ShopURL)
		printPartitionSummary(cmd, result.Partition)
		return nil
	}

	// --shop-url overrides the URL recorded in the result file.
	if shopURL, _ := cmd.Flags().GetString("shop-url"); shopURL == "" && result.ShopURL != "" {
		_ = cmd.Flags().Set("shop-url", result.ShopURL)
	}
	client, err := createShopifyClient(cmd)
	if err != nil {
		return err
	}

	syncCfg, err := syncConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	runner, err := syncer.NewWithConfig(client, syncCfg)
	if err != nil {
		return err
	}

	bar := newProgressBar(result.Partition.Total(), "Syncing collections...")
	outcome, err := runner.Sync(cmd.Context(), result.Products, result.Partition, &barReporter{bar: bar})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	cmd.Printf("Synced %d/%d products into %d collections",
		outcome.SuccessCount, outcome.Total, outcome.Collections)
	if outcome.Failed > 0 {
		cmd.Printf(" (%d failed)", outcome.Failed)
	}
	if outcome.Duplicates > 0 {
		cmd.Printf(" (%d duplicate assignments removed)", outcome.Duplicates)
	}
	cmd.Println()
	return nil
}
