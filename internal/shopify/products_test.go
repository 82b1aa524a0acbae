package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasTag(t *testing.T) {
	tests := []struct {
		name   string
		tags   string
		filter string
		want   bool
	}{
		{"exact match", "sale", "sale", true},
		{"case insensitive", "SALE", "sale", true},
		{"among several", "red, Blue , green", "blue", true},
		{"whitespace trimmed", "  sale  ", "sale", true},
		{"substring does not count", "bluegreen", "blue", false},
		{"tag is substring of filter", "blue", "bluegreen", false},
		{"absent", "red, green", "blue", false},
		{"empty tags", "", "sale", false},
		{"empty filter", "sale", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasTag(tt.tags, tt.filter))
		})
	}
}

func TestFetchProductsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page_info") {
		case "":
			assert.Equal(t, "250", r.URL.Query().Get("limit"))
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/products.json?page_info=two&limit=250>; rel="next"`, server.URL))
			json.NewEncoder(w).Encode(productsPage{Products: []wireProduct{
				{ID: 1, Title: "Running Shoes", Tags: "sale, footwear"},
				{ID: 2, Title: "Plain Mug", Tags: "kitchen"},
			}})
		case "two":
			json.NewEncoder(w).Encode(productsPage{Products: []wireProduct{
				{ID: 3, Title: "Wool Socks", Tags: "SALE"},
			}})
		default:
			t.Errorf("unexpected page_info %q", r.URL.Query().Get("page_info"))
		}
	}))
	defer server.Close()

	products, err := newTestClient(t, server.URL).FetchProducts(context.Background(), "sale")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)
	assert.Equal(t, "Running Shoes", products[0].Title)
	assert.Equal(t, int64(3), products[1].ID)
}

func TestFetchProductsStopsOnEmptyPage(t *testing.T) {
	var server *httptest.Server
	var calls int
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// Link header present but the next page is empty.
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/products.json?page_info=empty>; rel="next"`, server.URL))
			json.NewEncoder(w).Encode(productsPage{Products: []wireProduct{
				{ID: 1, Title: "Running Shoes", Tags: "sale"},
			}})
			return
		}
		json.NewEncoder(w).Encode(productsPage{})
	}))
	defer server.Close()

	products, err := newTestClient(t, server.URL).FetchProducts(context.Background(), "sale")
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, 2, calls)
}

func TestFetchProductsNoNextLink(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Link", `<https://example.com/prev>; rel="previous"`)
		json.NewEncoder(w).Encode(productsPage{Products: []wireProduct{
			{ID: 1, Title: "Running Shoes", Tags: "sale"},
		}})
	}))
	defer server.Close()

	products, err := newTestClient(t, server.URL).FetchProducts(context.Background(), "sale")
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, 1, calls)
}

func TestFetchProductsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors":"[API] Invalid API key or access token"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).FetchProducts(context.Background(), "sale")
	assert.ErrorIs(t, err, common.ErrAuth)
}

func TestNextPageURL(t *testing.T) {
	h := http.Header{}
	assert.Empty(t, nextPageURL(h))

	h.Set("Link", `<https://shop/next?page_info=abc>; rel="next"`)
	assert.Equal(t, "https://shop/next?page_info=abc", nextPageURL(h))

	h.Set("Link", `<https://shop/prev>; rel="previous", <https://shop/next>; rel="next"`)
	assert.Equal(t, "https://shop/next", nextPageURL(h))
}
