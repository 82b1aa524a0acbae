package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/engine"
	"github.com/Veraticus/shopsort/internal/llm"
	"github.com/Veraticus/shopsort/internal/model"
	"github.com/Veraticus/shopsort/internal/taxonomy"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify tagged products into collections",
		Long: `Classify fetches the tagged products, generates (or accepts) a taxonomy,
and asks the model to place every product into exactly one collection. The
result can be written to a file for a later sync.`,
		RunE: runClassify,
	}

	addStoreFlags(cmd)
	cmd.Flags().String("tag", "", "product tag to filter on (required)")
	cmd.Flags().String("mode", "", "taxonomy shape (flat, hierarchical)")
	cmd.Flags().Int("size-hint", 0, "suggested number of top-level categories")
	cmd.Flags().String("taxonomy", "", "comma-separated collection names, bypassing generation")
	cmd.Flags().String("strategy", "", "batch strategy (fixed, adaptive, per-item)")
	cmd.Flags().String("fallback", "", "mass fallback policy (largest, catch-all)")
	cmd.Flags().Int("batch-size", 0, "products per model call (implies fixed strategy)")
	cmd.Flags().StringP("output", "o", "", "write the classification result to this file")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
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

	tax, parents, err := resolveTaxonomy(cmd, llmClient, products)
	if err != nil {
		return err
	}

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

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		shopURL, _ := cmd.Flags().GetString("shop-url")
		result := resultFile{
			ShopURL:   shopURL,
			Tag:       tag,
			Products:  products,
			Taxonomy:  tax.Names(),
			ParentMap: parents,
			Partition: partition,
		}
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, encoded, 0600); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
		cmd.Printf("Result written to %s\n", output)
	}
	return nil
}

// resolveTaxonomy honors an explicit --taxonomy list, otherwise asks the
// model for one.
func resolveTaxonomy(cmd *cobra.Command, llmClient llm.Client, products []model.Product) (*model.Taxonomy, model.ParentMap, error) {
	if list, _ := cmd.Flags().GetString("taxonomy"); list != "" {
		tax := model.NewTaxonomy()
		for _, name := range strings.Split(list, ",") {
			tax.Add(name)
		}
		if tax.Len() == 0 {
			return nil, nil, fmt.Errorf("%w: --taxonomy contained no usable names", common.ErrInvalidConfig)
		}
		return tax, tax.ParentMap(), nil
	}

	cfg, err := taxonomyConfigFromFlags(cmd)
	if err != nil {
		return nil, nil, err
	}

	titles := make([]string, len(products))
	for i, p := range products {
		titles[i] = p.Title
	}

	gen := taxonomy.NewGenerator(llmClient, cfg, slog.Default())
	return gen.Generate(cmd.Context(), titles)
}

func printPartitionSummary(cmd *cobra.Command, partition *model.Partition) {
	cmd.Printf("Classified %d products into %d collections:\n",
		partition.Total(), len(partition.Names()))
	for _, name := range partition.Names() {
		cmd.Printf("  %-40s %d\n", name, len(partition.Indices(name)))
	}
}
