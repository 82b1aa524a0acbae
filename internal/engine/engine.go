// Package engine implements the core classification engine that partitions
// every product into exactly one taxonomy bucket.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/llm"
	"github.com/Veraticus/shopsort/internal/model"
)

// BatchStrategy selects how products are grouped into classifier calls.
type BatchStrategy string

// Batch strategies. Fixed trades reliability for call count, per-item the
// reverse; adaptive shrinks batches as the taxonomy grows to keep each
// prompt's label list and expected output within the model's reliable range.
const (
	BatchFixed    BatchStrategy = "fixed"
	BatchAdaptive BatchStrategy = "adaptive"
	BatchPerItem  BatchStrategy = "per-item"
)

// FallbackPolicy decides where mass-unassigned products go when individual
// reclassification is skipped for cost reasons.
type FallbackPolicy string

// Fallback policies.
const (
	FallbackLargest  FallbackPolicy = "largest"
	FallbackCatchAll FallbackPolicy = "catch-all"
)

// Config holds configuration options for the classification engine.
type Config struct {
	Strategy BatchStrategy
	Fallback FallbackPolicy
	// CatchAll names the bucket used by the catch-all fallback policy.
	CatchAll string
	// BatchSize applies to the fixed strategy.
	BatchSize int
	// ReclassifyLimit is the unassigned count above which per-product
	// reclassification is skipped in favor of the fallback policy.
	ReclassifyLimit int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:        BatchAdaptive,
		Fallback:        FallbackLargest,
		CatchAll:        "Other",
		BatchSize:       200,
		ReclassifyLimit: 100,
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.Strategy {
	case BatchFixed, BatchAdaptive, BatchPerItem, "":
	default:
		return fmt.Errorf("%w: invalid batch strategy %q", common.ErrInvalidConfig, c.Strategy)
	}
	switch c.Fallback {
	case FallbackLargest, FallbackCatchAll, "":
	default:
		return fmt.Errorf("%w: invalid fallback policy %q", common.ErrInvalidConfig, c.Fallback)
	}
	return nil
}

// Engine partitions products into taxonomy buckets via batched classifier
// calls. Calls are serialized; the classifier is rate-limited upstream and a
// serialized pattern is what keeps it within budget.
type Engine struct {
	classifier Classifier
	logger     *slog.Logger
	cfg        Config
}

// New creates a classification engine with default configuration.
func New(classifier Classifier, logger *slog.Logger) *Engine {
	return NewWithConfig(classifier, DefaultConfig(), logger)
}

// NewWithConfig creates a classification engine with custom configuration.
func NewWithConfig(classifier Classifier, cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.Fallback == "" {
		cfg.Fallback = def.Fallback
	}
	if cfg.CatchAll == "" {
		cfg.CatchAll = def.CatchAll
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ReclassifyLimit <= 0 {
		cfg.ReclassifyLimit = def.ReclassifyLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{classifier: classifier, cfg: cfg, logger: logger}
}

// Classify assigns every product (by 1-based index) to exactly one taxonomy
// bucket. The returned partition is verified complete and duplicate-free;
// downstream consumers may assume that without re-checking. A verification
// shortfall is the one fatal failure and surfaces as ErrPartitionInvariant.
func (e *Engine) Classify(ctx context.Context, products []model.Product, tax *model.Taxonomy, reporter Reporter) (*model.Partition, error) {
	if len(products) == 0 {
		return nil, common.ErrNoProducts
	}
	if tax == nil || tax.Len() == 0 {
		return nil, fmt.Errorf("%w: empty taxonomy", common.ErrInvalidConfig)
	}
	if reporter == nil {
		reporter = NopReporter{}
	}

	n := len(products)
	batchSize := e.batchSize(tax.Len())
	batches := (n + batchSize - 1) / batchSize

	e.logger.Info("Starting classification",
		"products", n,
		"taxonomy_size", tax.Len(),
		"strategy", e.cfg.Strategy,
		"batch_size", batchSize,
		"batches", batches)

	reporter.Report(model.Event{Type: model.EventStart, Total: n, Count: batches})

	partition := model.NewPartition(tax.Names()...)
	assigned := make(map[int]string, n)

	for b := 0; b < batches; b++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := b * batchSize
		end := start + batchSize
		if end > n {
			end = n
		}

		reporter.Report(model.Event{
			Type:    model.EventBatchStart,
			Batch:   b + 1,
			Batches: batches,
		})

		e.classifyBatch(ctx, products, tax, start, end, assigned, partition)

		reporter.Report(model.Event{
			Type:     model.EventProgress,
			Progress: (end * 100) / n,
			Count:    end,
			Total:    n,
		})
	}

	if err := e.resolveUnassigned(ctx, products, tax, assigned, partition); err != nil {
		return nil, err
	}

	if err := e.verify(partition, n); err != nil {
		return nil, err
	}

	partition.DropEmpty()

	reporter.Report(model.Event{
		Type:        model.EventComplete,
		Total:       n,
		Collections: len(partition.Names()),
	})

	e.logger.Info("Classification complete",
		"products", n,
		"collections", len(partition.Names()))

	return partition, nil
}

// batchSize resolves the per-call batch size for the configured strategy.
func (e *Engine) batchSize(taxonomySize int) int {
	switch e.cfg.Strategy {
	case BatchPerItem:
		return 1
	case BatchFixed:
		return e.cfg.BatchSize
	default:
		// Shrink from 40 toward 15 as the label list grows.
		size := 40 - taxonomySize/4
		if size < 15 {
			size = 15
		}
		return size
	}
}

// classifyBatch classifies products[start:end] in one call and records every
// valid assignment. On any call or parse failure the whole batch is left
// unassigned for the reclassification pass.
func (e *Engine) classifyBatch(ctx context.Context, products []model.Product, tax *model.Taxonomy, start, end int, assigned map[int]string, partition *model.Partition) {
	content, err := e.classifier.Chat(ctx, llm.Request{
		System: "You are a product categorization expert. Return only valid JSON.",
		Prompt: e.buildBatchPrompt(products, tax, start, end),
	})
	if err != nil {
		e.logger.Warn("batch classification call failed",
			"start_index", start+1,
			"end_index", end,
			"error", err)
		return
	}

	labels, err := parseBatchResponse(content)
	if err != nil {
		e.logger.Warn("batch classification response unusable",
			"start_index", start+1,
			"end_index", end,
			"error", err)
		return
	}

	// Resolution walks the batch's own index range, so indices the model
	// invented outside the batch are discarded before they are considered.
	for idx := start + 1; idx <= end; idx++ {
		label, ok := labels[idx]
		if !ok {
			continue
		}
		if prev, dup := assigned[idx]; dup {
			e.logger.Warn("model emitted index twice, keeping first assignment",
				"index", idx,
				"kept", prev,
				"dropped", label)
			continue
		}
		if !tax.Contains(label) {
			e.logger.Debug("model returned label outside taxonomy",
				"index", idx,
				"label", label)
			continue
		}
		assigned[idx] = label
		partition.Assign(label, idx)
	}
}

// resolveUnassigned guarantees every index ends up assigned: a small
// remainder is reclassified one product at a time, a large one goes to the
// fallback bucket wholesale.
func (e *Engine) resolveUnassigned(ctx context.Context, products []model.Product, tax *model.Taxonomy, assigned map[int]string, partition *model.Partition) error {
	var unassigned []int
	for idx := 1; idx <= len(products); idx++ {
		if _, ok := assigned[idx]; !ok {
			unassigned = append(unassigned, idx)
		}
	}
	if len(unassigned) == 0 {
		return nil
	}

	e.logger.Info("Reclassification pass",
		"unassigned", len(unassigned),
		"limit", e.cfg.ReclassifyLimit)

	if len(unassigned) > e.cfg.ReclassifyLimit {
		e.fallbackAssign(unassigned, assigned, partition)
		return nil
	}

	var leftovers []int
	for _, idx := range unassigned {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		label, ok := e.reclassifyOne(ctx, products[idx-1], tax)
		if !ok {
			leftovers = append(leftovers, idx)
			continue
		}
		assigned[idx] = label
		partition.Assign(label, idx)
	}

	if len(leftovers) > 0 {
		e.fallbackAssign(leftovers, assigned, partition)
	}
	return nil
}

// reclassifyOne asks for a single product's collection. Invalid or failed
// responses report ok=false; the caller falls back.
func (e *Engine) reclassifyOne(ctx context.Context, product model.Product, tax *model.Taxonomy) (string, bool) {
	content, err := e.classifier.Chat(ctx, llm.Request{
		System: "You are a product categorization expert. Return only valid JSON.",
		Prompt: e.buildSinglePrompt(product, tax),
	})
	if err != nil {
		e.logger.Warn("single-product reclassification failed",
			"product", product.Title,
			"error", err)
		return "", false
	}

	raw, err := llm.ExtractJSONValue(content)
	if err != nil {
		return "", false
	}
	var resp struct {
		Collection string `json:"collection"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", false
	}
	label := strings.TrimSpace(resp.Collection)
	if !tax.Contains(label) {
		return "", false
	}
	return label, true
}

// fallbackAssign routes indices to the configured fallback bucket. The
// largest-bucket policy is deterministic: ties break by taxonomy order, and
// an entirely empty partition degrades to the first taxonomy entry.
func (e *Engine) fallbackAssign(indices []int, assigned map[int]string, partition *model.Partition) {
	var bucket string
	if e.cfg.Fallback == FallbackCatchAll {
		bucket = e.cfg.CatchAll
	} else {
		name, ok := partition.Largest()
		if !ok {
			bucket = e.cfg.CatchAll
		} else {
			bucket = name
		}
	}

	e.logger.Warn("assigning unclassified products to fallback bucket",
		"count", len(indices),
		"bucket", bucket,
		"policy", e.cfg.Fallback)

	for _, idx := range indices {
		assigned[idx] = bucket
		partition.Assign(bucket, idx)
	}
}

// verify is the mandatory final check: the partition must cover 1..n exactly
// once. Duplicates are removed defensively (first bucket in iteration order
// wins) because the model's output is untrusted; a shortfall after that is a
// data-loss risk and aborts the run.
func (e *Engine) verify(partition *model.Partition, n int) error {
	if removed := partition.Dedupe(); removed > 0 {
		e.logger.Warn("removed duplicate assignments during final verification",
			"removed", removed)
	}
	if err := partition.Verify(n); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPartitionInvariant, err)
	}
	return nil
}

// buildBatchPrompt enumerates the taxonomy and the batch's (index, title)
// pairs and asks for a JSON index-to-label mapping.
func (e *Engine) buildBatchPrompt(products []model.Product, tax *model.Taxonomy, start, end int) string {
	var names strings.Builder
	for _, name := range tax.Names() {
		fmt.Fprintf(&names, "- %s\n", name)
	}

	var titles strings.Builder
	for idx := start + 1; idx <= end; idx++ {
		fmt.Fprintf(&titles, "%d. %s\n", idx, products[idx-1].Title)
	}

	return fmt.Sprintf(`Classify each product below into exactly one of these collections.

Collections:
%s
Products:
%s
Return a JSON object mapping each product number (as a string key) to exactly one collection name from the list.

Example format:
{
  "%d": "%s",
  "%d": "%s"
}

IMPORTANT: Use the exact numbers and the exact collection names shown above. Every product number must appear exactly once.`,
		names.String(),
		titles.String(),
		start+1, tax.Names()[0],
		start+2, tax.Names()[len(tax.Names())-1])
}

// buildSinglePrompt asks for one product's collection by title only.
func (e *Engine) buildSinglePrompt(product model.Product, tax *model.Taxonomy) string {
	var names strings.Builder
	for _, name := range tax.Names() {
		fmt.Fprintf(&names, "- %s\n", name)
	}

	return fmt.Sprintf(`Classify this product into exactly one of these collections.

Collections:
%s
Product: %s

Return a JSON object of the form {"collection": "<collection name>"} and nothing else.`,
		names.String(),
		product.Title)
}

// parseBatchResponse extracts the index-to-label mapping from a batch
// response. Unparseable keys are dropped; a missing or malformed JSON value
// rejects the whole response.
func parseBatchResponse(content string) (map[int]string, error) {
	raw, err := llm.ExtractJSONValue(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrClassifierMalformed, err)
	}

	var byKey map[string]string
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrClassifierMalformed, err)
	}

	labels := make(map[int]string, len(byKey))
	for key, label := range byKey {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		labels[idx] = strings.TrimSpace(label)
	}
	return labels, nil
}
