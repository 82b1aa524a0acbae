package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/engine"
	"github.com/Veraticus/shopsort/internal/syncer"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: fetch, taxonomy, classify, sync",
		Long: `Run executes the whole pipeline in one shot: fetch the tagged products,
generate a taxonomy, classify every product, and sync the collections back
to the storefront. Use --dry-run to stop before the sync.`,
		RunE: runPipeline,
	}

	addStoreFlags(cmd)
	cmd.Flags().String("tag", "", "product tag to filter on (required)")
	cmd.Flags().String("mode", "", "taxonomy shape (flat, hierarchical)")
	cmd.Flags().Int("size-hint", 0, "suggested number of top-level categories")
	cmd.Flags().String("taxonomy", "", "comma-separated collection names, bypassing generation")
	cmd.Flags().String("strategy", "", "batch strategy (fixed, adaptive, per-item)")
	cmd.Flags().String("fallback", "", "mass fallback policy (largest, catch-all)")
	cmd.Flags().Int("batch-size", 0, "products per model call (implies fixed strategy)")
	cmd.Flags().String("sync-mode", "", "collection mode (manual, smart)")
	cmd.Flags().Bool("dry-run", false, "classify but do not touch the store")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	tag, _ := cmd.Flags().GetString("tag")

	client, err := createShopifyClient(cmd)
	if err != nil {
		return err
	}
	llmClient, err := createLLMClient()
	if err != nil {
		return err
	}

	cmd.Printf("Fetching products tagged %q...\n", tag)
	products, err := client.FetchProducts(cmd.Context(), tag)
	if err != nil {
		return fmt.Errorf("failed to fetch products: %w", err)
	}
	if len(products) == 0 {
		return fmt.Errorf("%w: no products tagged %q", common.ErrNoProducts, tag)
	}
	cmd.Printf("Found %d products.\n", len(products))

	tax, _, err := resolveTaxonomy(cmd, llmClient, products)
	if err != nil {
		return err
	}
	cmd.Printf("Using %d collections.\n", tax.Len())

	engineCfg, err := engineConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	bar := newProgressBar(len(products), "Classifying products...")
	eng := engine.NewWithConfig(llmClient, engineCfg, slog.Default())
	partition, err := eng.Classify(cmd.Context(), products, tax, &barReporter{bar: bar})
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}
	printPartitionSummary(cmd, partition)

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cmd.Println("Dry run: skipping sync.")
		return nil
	}

	syncCfg, err := syncConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	runner, err := syncer.NewWithConfig(client, syncCfg)
	if err != nil {
		return err
	}

	syncBar := newProgressBar(partition.Total(), "Syncing collections...")
	outcome, err := runner.Sync(cmd.Context(), products, partition, &barReporter{bar: syncBar})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	cmd.Printf("Done: %d/%d products synced into %d collections.\n",
		outcome.SuccessCount, outcome.Total, outcome.Collections)
	return nil
}
