package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Veraticus/shopsort/internal/engine"
	"github.com/Veraticus/shopsort/internal/llm"
	"github.com/Veraticus/shopsort/internal/model"
	"github.com/Veraticus/shopsort/internal/shopify"
	"github.com/Veraticus/shopsort/internal/syncer"
	"github.com/Veraticus/shopsort/internal/taxonomy"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// createLLMClient builds the configured LLM client wrapped with rate
// limiting and retries. Shared by every command that talks to the model.
func createLLMClient() (llm.Client, error) {
	config := llm.Config{
		Provider:    viper.GetString("llm.provider"),
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
	}
	if config.Provider == "" {
		config.Provider = "openai"
	}

	apiKey := viper.GetString("llm.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not found in config or OPENAI_API_KEY environment variable")
	}
	config.APIKey = apiKey

	client, err := llm.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return llm.NewThrottled(client, config, nil), nil
}

// addStoreFlags registers the storefront credential flags shared by the
// commands that talk to a shop.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("shop-url", "", "storefront URL (e.g. example.myshopify.com)")
	cmd.Flags().String("access-token", "", "storefront Admin API access token")
}

// createShopifyClient resolves credentials from flags, config, then
// environment, and builds the storefront client.
func createShopifyClient(cmd *cobra.Command) (*shopify.Client, error) {
	shopURL, _ := cmd.Flags().GetString("shop-url")
	if shopURL == "" {
		shopURL = viper.GetString("shopify.shop_url")
	}

	token, _ := cmd.Flags().GetString("access-token")
	if token == "" {
		token = viper.GetString("shopify.access_token")
	}
	if token == "" {
		token = os.Getenv("SHOPIFY_ACCESS_TOKEN")
	}

	return shopify.NewClient(shopify.Config{
		ShopURL:     shopURL,
		AccessToken: token,
		APIVersion:  viper.GetString("shopify.api_version"),
		WriteRate:   viper.GetFloat64("shopify.write_rate"),
	})
}

// taxonomyConfigFromFlags merges config file defaults with command flags.
func taxonomyConfigFromFlags(cmd *cobra.Command) (taxonomy.Config, error) {
	cfg := taxonomy.Config{
		Mode:       taxonomy.Mode(viper.GetString("taxonomy.mode")),
		SampleSize: viper.GetInt("taxonomy.sample_size"),
		SizeHint:   viper.GetInt("taxonomy.size_hint"),
	}
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		cfg.Mode = taxonomy.Mode(mode)
	}
	if hint, _ := cmd.Flags().GetInt("size-hint"); hint > 0 {
		cfg.SizeHint = hint
	}
	if err := cfg.Validate(); err != nil {
		return taxonomy.Config{}, err
	}
	return cfg, nil
}

// engineConfigFromFlags merges config file defaults with command flags.
func engineConfigFromFlags(cmd *cobra.Command) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if strategy := viper.GetString("engine.strategy"); strategy != "" {
		cfg.Strategy = engine.BatchStrategy(strategy)
	}
	if fallback := viper.GetString("engine.fallback"); fallback != "" {
		cfg.Fallback = engine.FallbackPolicy(fallback)
	}
	if size := viper.GetInt("engine.batch_size"); size > 0 {
		cfg.BatchSize = size
	}

	if strategy, _ := cmd.Flags().GetString("strategy"); strategy != "" {
		cfg.Strategy = engine.BatchStrategy(strategy)
	}
	if fallback, _ := cmd.Flags().GetString("fallback"); fallback != "" {
		cfg.Fallback = engine.FallbackPolicy(fallback)
	}
	if size, _ := cmd.Flags().GetInt("batch-size"); size > 0 {
		cfg.BatchSize = size
		cfg.Strategy = engine.BatchFixed
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

// syncConfigFromFlags merges config file defaults with command flags.
func syncConfigFromFlags(cmd *cobra.Command) (syncer.Config, error) {
	cfg := syncer.DefaultConfig()
	if mode := viper.GetString("sync.mode"); mode != "" {
		cfg.Mode = syncer.Mode(mode)
	}
	if prefix := viper.GetString("sync.tag_prefix"); prefix != "" {
		cfg.TagPrefix = prefix
	}
	if mode, _ := cmd.Flags().GetString("sync-mode"); mode != "" {
		cfg.Mode = syncer.Mode(mode)
	}
	if err := cfg.Validate(); err != nil {
		return syncer.Config{}, err
	}
	return cfg, nil
}

// resultFile is the on-disk handoff between classify and sync.
type resultFile struct {
	ShopURL   string           `json:"shop_url"`
	Tag       string           `json:"tag"`
	Products  []model.Product  `json:"products"`
	Taxonomy  []string         `json:"taxonomy"`
	ParentMap model.ParentMap  `json:"parent_map,omitempty"`
	Partition *model.Partition `json:"partition"`
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

// barReporter drives a progress bar from pipeline events.
type barReporter struct {
	bar *progressbar.ProgressBar
}

func (r *barReporter) Report(event model.Event) {
	switch event.Type {
	case model.EventProgress:
		_ = r.bar.Set(event.Count)
	case model.EventProductAdded:
		_ = r.bar.Set(event.Progress)
	case model.EventComplete:
		_ = r.bar.Finish()
	}
}
