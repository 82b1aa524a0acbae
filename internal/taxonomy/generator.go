// Package taxonomy generates the set of collection names products are
// classified into, by asking the model for candidate categories from a
// representative sample of product titles.
package taxonomy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/shopsort/internal/llm"
	"github.com/Veraticus/shopsort/internal/model"
)

// Mode selects the shape of the generated taxonomy.
type Mode string

// Taxonomy modes.
const (
	ModeFlat         Mode = "flat"
	ModeHierarchical Mode = "hierarchical"
)

// Config holds generator configuration.
type Config struct {
	Mode Mode
	// SampleSize caps how many titles are sent to the model. Titles are
	// sampled at an even stride across the catalog, not from the front.
	SampleSize int
	// SizeHint suggests how many top-level categories to aim for.
	SizeHint int
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeFlat, ModeHierarchical, "":
	default:
		return fmt.Errorf("invalid taxonomy mode: %s", c.Mode)
	}
	return nil
}

// Generator asks the classifier for a candidate taxonomy, falling back on a
// static default when the model fails. Generation failure never blocks
// classification.
type Generator struct {
	client llm.Client
	logger *slog.Logger
	cfg    Config
}

// NewGenerator creates a taxonomy generator.
func NewGenerator(client llm.Client, cfg Config, logger *slog.Logger) *Generator {
	if cfg.Mode == "" {
		cfg.Mode = ModeHierarchical
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 100
	}
	if cfg.SizeHint <= 0 {
		cfg.SizeHint = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, cfg: cfg, logger: logger}
}

// Generate produces a taxonomy from the given product titles. Any model,
// transport, or parse failure falls back to the default taxonomy; the only
// error returned is context cancellation.
func (g *Generator) Generate(ctx context.Context, titles []string) (*model.Taxonomy, model.ParentMap, error) {
	tax, pm, err := g.generate(ctx, titles)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		g.logger.Warn("taxonomy generation failed, using default taxonomy",
			"mode", g.cfg.Mode,
			"error", err)
		tax, pm = g.Default()
	}
	return tax, pm, nil
}

// Default returns the static fallback taxonomy for the configured mode.
func (g *Generator) Default() (*model.Taxonomy, model.ParentMap) {
	if g.cfg.Mode == ModeFlat {
		return model.NewTaxonomy(defaultFlat...), model.ParentMap{}
	}

	tax := model.NewTaxonomy()
	pm := make(model.ParentMap)
	for _, group := range defaultHierarchical {
		for _, sub := range group.subs {
			name := group.parent + model.HierarchySeparator + sub
			tax.Add(name)
			pm[name] = group.parent
		}
	}
	return tax, pm
}

func (g *Generator) generate(ctx context.Context, titles []string) (*model.Taxonomy, model.ParentMap, error) {
	if len(titles) == 0 {
		return nil, nil, fmt.Errorf("no titles to sample")
	}

	sample := sampleTitles(titles, g.cfg.SampleSize)
	g.logger.Debug("sampled titles for taxonomy generation",
		"catalog_size", len(titles),
		"sample_size", len(sample))

	content, err := g.client.Chat(ctx, llm.Request{
		System: "You are a product categorization expert. Return only valid JSON.",
		Prompt: g.buildPrompt(sample),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("taxonomy request failed: %w", err)
	}

	raw, err := llm.ExtractJSONValue(content)
	if err != nil {
		return nil, nil, fmt.Errorf("taxonomy response: %w", err)
	}

	if g.cfg.Mode == ModeFlat {
		return g.parseFlat(raw)
	}
	return g.parseHierarchical(raw)
}

// buildPrompt creates the generation prompt for the configured mode.
func (g *Generator) buildPrompt(sample []string) string {
	var b strings.Builder
	for i, title := range sample {
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
	}

	if g.cfg.Mode == ModeFlat {
		return fmt.Sprintf(`These are titles from a store's product catalog:

%s
Propose a set of collection names that would organize this catalog, aiming for roughly %d collections.
Return a JSON array of collection name strings and nothing else.

Example format:
["Bike Storage", "Flooring Tools", "Storage Solutions"]`, b.String(), g.cfg.SizeHint)
	}

	return fmt.Sprintf(`These are titles from a store's product catalog:

%s
Propose a two-level set of collections that would organize this catalog, aiming for roughly %d parent categories, each with a few subcategories.
Return a JSON object whose keys are parent category names and whose values are arrays of subcategory names, and nothing else.

Example format:
{
  "Storage": ["Bike Storage", "Shelving"],
  "Tools": ["Flooring Tools", "Hand Tools"]
}`, b.String(), g.cfg.SizeHint)
}

// parseFlat decodes a JSON array of collection names and appends the
// catch-all bucket.
func (g *Generator) parseFlat(raw json.RawMessage) (*model.Taxonomy, model.ParentMap, error) {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, nil, fmt.Errorf("expected JSON array of names: %w", err)
	}

	tax := model.NewTaxonomy(names...)
	if tax.Len() == 0 {
		return nil, nil, fmt.Errorf("taxonomy response contained no usable names")
	}
	tax.Add(CatchAllBucket)
	return tax, model.ParentMap{}, nil
}

// parseHierarchical decodes a JSON object of parent -> subcategories. A
// token-level walk preserves the model's key order, which becomes taxonomy
// iteration order.
func (g *Generator) parseHierarchical(raw json.RawMessage) (*model.Taxonomy, model.ParentMap, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("expected JSON object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	tax := model.NewTaxonomy()
	pm := make(model.ParentMap)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("reading parent name: %w", err)
		}
		parent, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected parent name string, got %v", keyTok)
		}

		var subs []string
		if err := dec.Decode(&subs); err != nil {
			return nil, nil, fmt.Errorf("parent %q: expected array of subcategories: %w", parent, err)
		}

		parent = strings.TrimSpace(parent)
		for _, sub := range subs {
			sub = strings.TrimSpace(sub)
			if parent == "" || sub == "" {
				continue
			}
			name := parent + model.HierarchySeparator + sub
			if tax.Add(name) {
				pm[name] = parent
			}
		}
	}

	if tax.Len() == 0 {
		return nil, nil, fmt.Errorf("taxonomy response contained no usable names")
	}
	return tax, pm, nil
}

// sampleTitles selects up to target titles at an even stride, so the sample
// represents the whole catalog rather than one ingestion region.
func sampleTitles(titles []string, target int) []string {
	if len(titles) <= target {
		out := make([]string, len(titles))
		copy(out, titles)
		return out
	}

	stride := float64(len(titles)) / float64(target)
	out := make([]string, 0, target)
	for i := 0; i < target; i++ {
		out = append(out, titles[int(float64(i)*stride)])
	}
	return out
}
