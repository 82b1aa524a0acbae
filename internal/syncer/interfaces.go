// Package syncer pushes a classification result back to the storefront as
// collections, idempotently and without aborting on per-product failures.
package syncer

import (
	"context"

	"github.com/Veraticus/shopsort/internal/shopify"
)

// Sink is the slice of the storefront API the syncer needs. *shopify.Client
// satisfies it; tests substitute a mock.
type Sink interface {
	Preflight(ctx context.Context) error
	FindCollectionByTitle(ctx context.Context, title string, smart bool) (*shopify.Collection, error)
	CreateCollection(ctx context.Context, title string) (*shopify.Collection, error)
	CreateSmartCollection(ctx context.Context, title, tag string) (*shopify.Collection, error)
	AddProductToCollection(ctx context.Context, productID, collectionID int64) error
	AddProductTag(ctx context.Context, productID int64, tag string) error
}
