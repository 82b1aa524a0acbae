package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/taxonomy"
	"github.com/spf13/cobra"
)

func taxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Generate a collection taxonomy from tagged products",
		Long: `Taxonomy fetches the tagged products and asks the model to propose a
set of collection names for them. If the model fails or returns something
unusable, a built-in default taxonomy is printed instead.`,
		RunE: runTaxonomy,
	}

	addStoreFlags(cmd)
	cmd.Flags().String("tag", "", "product tag to filter on (required)")
	cmd.Flags().String("mode", "", "taxonomy shape (flat, hierarchical)")
	cmd.Flags().Int("size-hint", 0, "suggested number of top-level categories")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func runTaxonomy(cmd *cobra.Command, _ []string) error {
	tag, _ := cmd.Flags().GetString("tag")

	client, err := createShopifyClient(cmd)
	if err != nil {
		return err
	}
	llmClient, err := createLLMClient()
	if err != nil {
		return err
	}

	products, err := client.FetchProducts(cmd.Context(), tag)
	if err != nil {
		return fmt.Errorf("failed to fetch products: %w", err)
	}
	if len(products) == 0 {
		return fmt.Errorf("%w: no products tagged %q", common.ErrNoProducts, tag)
	}

	cfg, err := taxonomyConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	titles := make([]string, len(products))
	for i, p := range products {
		titles[i] = p.Title
	}

	gen := taxonomy.NewGenerator(llmClient, cfg, slog.Default())
	tax, parents, err := gen.Generate(cmd.Context(), titles)
	if err != nil {
		return err
	}

	cmd.Printf("Proposed %d collections for %d products:\n", tax.Len(), len(products))
	for _, name := range tax.Names() {
		cmd.Printf("  %s\n", name)
	}
	if len(parents) > 0 {
		cmd.Printf("(%d hierarchical entries)\n", len(parents))
	}
	return nil
}
