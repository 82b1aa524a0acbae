package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Veraticus/shopsort/internal/common"
)

// Preflight verifies the credentials can touch collections before a sync
// mutates anything. A 403 means the token is missing the write_products or
// write_custom_collections scope; anything else unexpected is treated as a
// connectivity problem.
func (c *Client) Preflight(ctx context.Context) error {
	_, _, err := c.get(ctx, "/custom_collections/count.json")
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", common.ErrAuth, apiErr)
		case http.StatusForbidden:
			return fmt.Errorf("%w: token lacks collection scopes: %v", common.ErrPermission, apiErr)
		}
	}
	return fmt.Errorf("%w: %v", common.ErrConnectivity, err)
}

// FindCollectionByTitle returns the first collection whose title matches
// case-insensitively, or nil when none exists. Smart and custom collections
// live in separate namespaces on the storefront.
func (c *Client) FindCollectionByTitle(ctx context.Context, title string, smart bool) (*Collection, error) {
	var collections []Collection
	var err error
	if smart {
		collections, err = c.listSmartCollections(ctx)
	} else {
		collections, err = c.listCustomCollections(ctx)
	}
	if err != nil {
		return nil, err
	}

	for i := range collections {
		if strings.EqualFold(collections[i].Title, title) {
			return &collections[i], nil
		}
	}
	return nil, nil
}

func (c *Client) listCustomCollections(ctx context.Context) ([]Collection, error) {
	var all []Collection
	url := fmt.Sprintf("/custom_collections.json?limit=%d", productsPageSize)
	for page := 0; page < maxProductPages; page++ {
		body, header, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		var parsed customCollectionsPage
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse collections page: %w", err)
		}
		if len(parsed.CustomCollections) == 0 {
			break
		}
		all = append(all, parsed.CustomCollections...)

		next := nextPageURL(header)
		if next == "" {
			break
		}
		url = next
	}
	return all, nil
}

func (c *Client) listSmartCollections(ctx context.Context) ([]Collection, error) {
	var all []Collection
	url := fmt.Sprintf("/smart_collections.json?limit=%d", productsPageSize)
	for page := 0; page < maxProductPages; page++ {
		body, header, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		var parsed smartCollectionsPage
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse collections page: %w", err)
		}
		if len(parsed.SmartCollections) == 0 {
			break
		}
		all = append(all, parsed.SmartCollections...)

		next := nextPageURL(header)
		if next == "" {
			break
		}
		url = next
	}
	return all, nil
}

// CreateCollection creates a published custom collection with the given title.
func (c *Client) CreateCollection(ctx context.Context, title string) (*Collection, error) {
	payload := map[string]any{
		"custom_collection": map[string]any{
			"title":     title,
			"published": true,
		},
	}
	body, err := c.post(ctx, "/custom_collections.json", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", title, err)
	}

	var created customCollectionEnvelope
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created collection: %w", err)
	}
	c.logger.Info("created collection", "title", title, "id", created.CustomCollection.ID)
	return &created.CustomCollection, nil
}

// CreateSmartCollection creates a published smart collection whose single
// rule selects products carrying the given tag. Membership is maintained by
// the storefront from then on.
func (c *Client) CreateSmartCollection(ctx context.Context, title, tag string) (*Collection, error) {
	payload := smartCollectionEnvelope{
		SmartCollection: smartCollectionPayload{
			Title:     title,
			Published: true,
			Rules: []smartCollectionRule{
				{Column: "tag", Relation: "equals", Condition: tag},
			},
		},
	}
	body, err := c.post(ctx, "/smart_collections.json", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create smart collection %q: %w", title, err)
	}

	var created smartCollectionCreated
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created smart collection: %w", err)
	}
	c.logger.Info("created smart collection", "title", title, "id", created.SmartCollection.ID)
	return &created.SmartCollection, nil
}

// AddProductToCollection associates a product with a custom collection.
// A 422 response means the association already exists and counts as success,
// which is what makes re-running a sync safe.
func (c *Client) AddProductToCollection(ctx context.Context, productID, collectionID int64) error {
	payload := collectEnvelope{
		Collect: collectPayload{ProductID: productID, CollectionID: collectionID},
	}
	_, err := c.post(ctx, "/collects.json", payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity {
			return nil
		}
		return fmt.Errorf("failed to add product %d to collection %d: %w", productID, collectionID, err)
	}
	return nil
}

// AddProductTag appends a tag to a product's tag list unless it is already
// present. The tag list is read-modify-write, so concurrent writers to the
// same product can lose tags; syncs run serially for that reason.
func (c *Client) AddProductTag(ctx context.Context, productID int64, tag string) error {
	path := fmt.Sprintf("/products/%d.json?fields=id,tags", productID)
	body, _, err := c.get(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to read product %d: %w", productID, err)
	}

	var current productEnvelope
	if err := json.Unmarshal(body, &current); err != nil {
		return fmt.Errorf("failed to parse product %d: %w", productID, err)
	}
	if hasTag(current.Product.Tags, tag) {
		return nil
	}

	tags := strings.TrimSpace(current.Product.Tags)
	if tags == "" {
		tags = tag
	} else {
		tags += ", " + tag
	}

	payload := map[string]any{
		"product": map[string]any{
			"id":   productID,
			"tags": tags,
		},
	}
	if _, err := c.put(ctx, fmt.Sprintf("/products/%d.json", productID), payload); err != nil {
		return fmt.Errorf("failed to tag product %d: %w", productID, err)
	}
	return nil
}
