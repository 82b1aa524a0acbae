// Package model defines the core domain types used throughout the application.
package model

// Product is a minimal record of a storefront product. Identity is the
// platform-assigned ID; the title is what the classifier sees.
type Product struct {
	Title string `json:"title"`
	ID    int64  `json:"id"`
}
