package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/model"
)

const (
	productsPageSize = 250
	// maxProductPages bounds a runaway pagination loop; at 250 per page
	// that is 25k products.
	maxProductPages = 100
)

// nextLinkPattern extracts the next-page cursor from the Link header.
var nextLinkPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// FetchProducts retrieves every product carrying the given tag, walking
// Link-header pagination until the store runs out of pages. The tag match is
// exact and case-insensitive against each entry of the product's
// comma-separated tag list; substring matches do not count.
func (c *Client) FetchProducts(ctx context.Context, tag string) ([]model.Product, error) {
	url := fmt.Sprintf("/products.json?limit=%d&fields=id,title,tags", productsPageSize)

	var products []model.Product
	for page := 0; page < maxProductPages; page++ {
		body, header, err := c.get(ctx, url)
		if err != nil {
			return nil, mapFetchError(err)
		}

		var parsed productsPage
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse products page: %w", err)
		}
		if len(parsed.Products) == 0 {
			break
		}

		for _, p := range parsed.Products {
			if hasTag(p.Tags, tag) {
				products = append(products, model.Product{ID: p.ID, Title: p.Title})
			}
		}

		next := nextPageURL(header)
		if next == "" {
			break
		}
		url = next
	}

	c.logger.Info("fetched tagged products",
		"tag", tag,
		"count", len(products))
	return products, nil
}

// hasTag reports whether filter appears as one of the comma-separated tags.
func hasTag(tags, filter string) bool {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return false
	}
	for _, t := range strings.Split(tags, ",") {
		if strings.ToLower(strings.TrimSpace(t)) == filter {
			return true
		}
	}
	return false
}

func nextPageURL(header http.Header) string {
	link := header.Get("Link")
	if link == "" {
		return ""
	}
	match := nextLinkPattern.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	return match[1]
}

// mapFetchError translates credential failures into the sentinel the callers
// and the HTTP layer key their responses on.
func mapFetchError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", common.ErrAuth, apiErr)
		}
	}
	return err
}
