package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch tagged products from the storefront",
		Long: `Fetch walks the storefront's product pages and prints every product
carrying the given tag. Useful for checking the tag filter before running
the full pipeline.`,
		RunE: runFetch,
	}

	addStoreFlags(cmd)
	cmd.Flags().String("tag", "", "product tag to filter on (required)")
	cmd.Flags().Bool("json", false, "emit products as JSON")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func runFetch(cmd *cobra.Command, _ []string) error {
	tag, _ := cmd.Flags().GetString("tag")

	client, err := createShopifyClient(cmd)
	if err != nil {
		return err
	}

	products, err := client.FetchProducts(cmd.Context(), tag)
	if err != nil {
		return fmt.Errorf("failed to fetch products: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		encoded, err := json.MarshalIndent(products, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(encoded))
		return nil
	}

	cmd.Printf("Found %d products tagged %q:\n", len(products), tag)
	for _, p := range products {
		cmd.Printf("  %d  %s\n", p.ID, p.Title)
	}
	return nil
}
