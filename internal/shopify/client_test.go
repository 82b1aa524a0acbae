package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		ShopURL:     serverURL,
		AccessToken: "test-token",
		WriteRate:   1000,
		Retry: common.RetryOptions{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{AccessToken: "tok"})
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	_, err = NewClient(Config{ShopURL: "example.myshopify.com"})
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestNormalizeShopURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"example.myshopify.com", "https://example.myshopify.com"},
		{"https://example.myshopify.com/", "https://example.myshopify.com"},
		{"http://localhost:8080", "http://localhost:8080"},
		{"  example.myshopify.com  ", "https://example.myshopify.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeShopURL(tt.input))
	}
}

func TestCallSendsAccessToken(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		fmt.Fprint(w, `{"products":[]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchProducts(context.Background(), "sale")
	require.NoError(t, err)
	assert.Equal(t, "test-token", gotToken)
}

func TestCallRetryAfterHonored(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"products":[]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	start := time.Now()
	_, err := client.FetchProducts(context.Background(), "sale")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"products":[]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchProducts(context.Background(), "sale")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, _, err := client.get(context.Background(), "/products.json")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestCallContextCanceledDuringRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := newTestClient(t, server.URL)
	_, err := client.FetchProducts(ctx, "sale")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, defaultRetryAfter, retryAfter(h))

	h.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, retryAfter(h))

	h.Set("Retry-After", "0.5")
	assert.Equal(t, 500*time.Millisecond, retryAfter(h))

	h.Set("Retry-After", "soon")
	assert.Equal(t, defaultRetryAfter, retryAfter(h))
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"ok", http.StatusOK, nil},
		{"unauthorized", http.StatusUnauthorized, common.ErrAuth},
		{"forbidden", http.StatusForbidden, common.ErrPermission},
		{"not found", http.StatusNotFound, common.ErrConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK {
					fmt.Fprint(w, `{"count":0}`)
				}
			}))
			defer server.Close()

			err := newTestClient(t, server.URL).Preflight(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPreflightConnectivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	err := newTestClient(t, server.URL).Preflight(context.Background())
	assert.ErrorIs(t, err, common.ErrConnectivity)
}

func TestWriteRateLimiterSpacesCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(customCollectionEnvelope{
			CustomCollection: Collection{ID: 1, Title: "Shoes"},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{
		ShopURL:     server.URL,
		AccessToken: "tok",
		WriteRate:   20,
	})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.CreateCollection(context.Background(), "Shoes")
		require.NoError(t, err)
	}
	// 20 rps allows one burst token, so two waits of 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Status: 422, Body: `{"errors":"taken"}`}
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "taken")
	assert.False(t, errors.Is(err, common.ErrAuth))
}
