// Package storage persists pipeline sessions so the fetch, taxonomy,
// classify, and sync steps can run as separate HTTP requests.
package storage

import (
	"context"
	"time"

	"github.com/Veraticus/shopsort/internal/model"
)

// SessionTTL is how long an idle session stays retrievable.
const SessionTTL = 24 * time.Hour

// Session carries one store's pipeline state between steps. Credentials are
// kept server-side so the browser only ever holds the opaque session ID.
type Session struct {
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ID          string           `json:"id"`
	ShopURL     string           `json:"shop_url"`
	AccessToken string           `json:"-"`
	Tag         string           `json:"tag"`
	TaskID      string           `json:"task_id,omitempty"`
	Products    []model.Product  `json:"products,omitempty"`
	ParentMap   model.ParentMap  `json:"parent_map,omitempty"`
	Taxonomy    []string         `json:"taxonomy,omitempty"`
	Partition   *model.Partition `json:"partition,omitempty"`
}

// SessionStore persists sessions. Implementations expire sessions after
// SessionTTL of inactivity and return common.ErrNotFound for expired or
// unknown IDs.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}
