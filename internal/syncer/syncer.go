package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/model"
)

// Mode selects how collection membership is established.
type Mode string

const (
	// ModeManual creates custom collections and adds products explicitly.
	ModeManual Mode = "manual"
	// ModeSmart tags products and creates smart collections whose rule
	// matches the tag, leaving membership maintenance to the storefront.
	ModeSmart Mode = "smart"
)

// Reporter receives progress events during a sync.
type Reporter interface {
	Report(event model.Event)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) Report(model.Event) {}

// Config holds sync behavior settings.
type Config struct {
	Mode Mode
	// TagPrefix is prepended to the slugged collection title to form the
	// membership tag in smart mode.
	TagPrefix string
	// SkipPreflight disables the scope check before the first mutation.
	SkipPreflight bool
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeManual, ModeSmart:
		return nil
	default:
		return fmt.Errorf("%w: unknown sync mode %q", common.ErrInvalidConfig, c.Mode)
	}
}

// DefaultConfig mirrors the storefront's manual-collection workflow.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeManual,
		TagPrefix: "cat-",
	}
}

// Result summarizes a completed sync.
type Result struct {
	SuccessCount int
	Failed       int
	Duplicates   int
	Collections  int
	Total        int
}

// Syncer mirrors a partition onto the storefront as collections.
type Syncer struct {
	sink   Sink
	logger *slog.Logger
	cfg    Config
}

// New creates a Syncer with default configuration.
func New(sink Sink) (*Syncer, error) {
	return NewWithConfig(sink, DefaultConfig())
}

// NewWithConfig creates a Syncer with the given configuration.
func NewWithConfig(sink Sink, cfg Config) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Syncer{
		sink:   sink,
		cfg:    cfg,
		logger: slog.Default().With("component", "syncer"),
	}, nil
}

// Sync creates or reuses one collection per non-empty bucket and associates
// every product with its bucket's collection. Creation is create-or-get by
// case-insensitive title, so reruns converge instead of duplicating.
// Per-product and per-collection failures are reported and counted but do
// not abort the run; credential problems found by preflight do.
func (s *Syncer) Sync(ctx context.Context, products []model.Product, partition *model.Partition, reporter Reporter) (*Result, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if partition == nil {
		return nil, fmt.Errorf("partition is required")
	}

	if !s.cfg.SkipPreflight {
		if err := s.sink.Preflight(ctx); err != nil {
			reporter.Report(model.Event{Type: model.EventError, Message: err.Error()})
			return nil, fmt.Errorf("preflight failed: %w", err)
		}
	}

	result := &Result{
		Duplicates: partition.Dedupe(),
		Total:      partition.Total(),
	}
	names := partition.Names()
	result.Collections = len(names)

	reporter.Report(model.Event{
		Type:        model.EventStart,
		Total:       result.Total,
		Collections: result.Collections,
	})

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		indices := partition.Indices(name)
		reporter.Report(model.Event{
			Type:       model.EventCollectionStart,
			Collection: name,
			Count:      len(indices),
		})

		if err := s.syncBucket(ctx, name, indices, products, result, reporter); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Error("collection sync failed",
				"collection", name,
				"error", err)
			reporter.Report(model.Event{
				Type:       model.EventCollectionError,
				Collection: name,
				Message:    err.Error(),
			})
			result.Failed += len(indices)
		}
	}

	reporter.Report(model.Event{
		Type:         model.EventComplete,
		SuccessCount: result.SuccessCount,
		Total:        result.Total,
		Collections:  result.Collections,
	})
	s.logger.Info("sync complete",
		"success", result.SuccessCount,
		"failed", result.Failed,
		"duplicates_removed", result.Duplicates,
		"collections", result.Collections)
	return result, nil
}

func (s *Syncer) syncBucket(ctx context.Context, name string, indices []int, products []model.Product, result *Result, reporter Reporter) error {
	collectionID, created, err := s.ensureCollection(ctx, name)
	if err != nil {
		return err
	}
	if created {
		reporter.Report(model.Event{
			Type:         model.EventCollectionCreated,
			Collection:   name,
			CollectionID: collectionID,
		})
	}

	tag := s.collectionTag(name)
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return err
		}
		if idx < 1 || idx > len(products) {
			s.logger.Warn("index out of range, skipping", "index", idx, "collection", name)
			result.Failed++
			continue
		}
		product := products[idx-1]

		var addErr error
		if s.cfg.Mode == ModeSmart {
			addErr = s.sink.AddProductTag(ctx, product.ID, tag)
		} else {
			addErr = s.sink.AddProductToCollection(ctx, product.ID, collectionID)
		}
		if addErr != nil {
			s.logger.Warn("failed to add product",
				"product", product.Title,
				"collection", name,
				"error", addErr)
			result.Failed++
			continue
		}

		result.SuccessCount++
		reporter.Report(model.Event{
			Type:       model.EventProductAdded,
			Product:    product.Title,
			Collection: name,
			Progress:   result.SuccessCount + result.Failed,
			Total:      result.Total,
		})
	}
	return nil
}

// ensureCollection finds an existing collection by title or creates one.
func (s *Syncer) ensureCollection(ctx context.Context, title string) (id int64, created bool, err error) {
	smart := s.cfg.Mode == ModeSmart
	existing, err := s.sink.FindCollectionByTitle(ctx, title, smart)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up collection %q: %w", title, err)
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	if smart {
		made, err := s.sink.CreateSmartCollection(ctx, title, s.collectionTag(title))
		if err != nil {
			return 0, false, err
		}
		return made.ID, true, nil
	}

	made, err := s.sink.CreateCollection(ctx, title)
	if err != nil {
		return 0, false, err
	}
	return made.ID, true, nil
}

// collectionTag derives the smart-collection membership tag from a
// collection title, e.g. "Kitchen & Dining" becomes "cat-kitchen-dining".
func (s *Syncer) collectionTag(title string) string {
	var b strings.Builder
	b.WriteString(s.cfg.TagPrefix)

	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
