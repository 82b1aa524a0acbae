package syncer

import (
	"context"
	"strings"
	"sync"

	"github.com/Veraticus/shopsort/internal/shopify"
)

// MockSink is an in-memory Sink for testing. Collections and associations
// accumulate in maps; error injection hooks fail individual operations.
type MockSink struct {
	PreflightErr error
	CreateErr    func(title string) error
	AddErr       func(productID int64) error

	mu          sync.Mutex
	nextID      int64
	collections map[string]*shopify.Collection
	smart       map[string]*shopify.Collection
	smartTags   map[string]string
	members     map[int64][]int64
	productTags map[int64][]string
	createCalls int
}

// NewMockSink creates an empty MockSink.
func NewMockSink() *MockSink {
	return &MockSink{
		nextID:      100,
		collections: make(map[string]*shopify.Collection),
		smart:       make(map[string]*shopify.Collection),
		smartTags:   make(map[string]string),
		members:     make(map[int64][]int64),
		productTags: make(map[int64][]string),
	}
}

func (m *MockSink) Preflight(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PreflightErr
}

func (m *MockSink) FindCollectionByTitle(_ context.Context, title string, smart bool) (*shopify.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.collections
	if smart {
		pool = m.smart
	}
	for key, c := range pool {
		if strings.EqualFold(key, title) {
			return c, nil
		}
	}
	return nil, nil
}

func (m *MockSink) CreateCollection(_ context.Context, title string) (*shopify.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		if err := m.CreateErr(title); err != nil {
			return nil, err
		}
	}
	m.createCalls++
	m.nextID++
	c := &shopify.Collection{ID: m.nextID, Title: title}
	m.collections[title] = c
	return c, nil
}

func (m *MockSink) CreateSmartCollection(_ context.Context, title, tag string) (*shopify.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		if err := m.CreateErr(title); err != nil {
			return nil, err
		}
	}
	m.createCalls++
	m.nextID++
	c := &shopify.Collection{ID: m.nextID, Title: title}
	m.smart[title] = c
	m.smartTags[title] = tag
	return c, nil
}

func (m *MockSink) AddProductToCollection(_ context.Context, productID, collectionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		if err := m.AddErr(productID); err != nil {
			return err
		}
	}
	m.members[collectionID] = append(m.members[collectionID], productID)
	return nil
}

func (m *MockSink) AddProductTag(_ context.Context, productID int64, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		if err := m.AddErr(productID); err != nil {
			return err
		}
	}
	m.productTags[productID] = append(m.productTags[productID], tag)
	return nil
}

// Seed installs a pre-existing collection, as if a prior run created it.
func (m *MockSink) Seed(title string, smart bool) *shopify.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &shopify.Collection{ID: m.nextID, Title: title}
	if smart {
		m.smart[title] = c
	} else {
		m.collections[title] = c
	}
	return c
}

// Members returns the product IDs associated with a collection.
func (m *MockSink) Members(collectionID int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.members[collectionID]...)
}

// Tags returns the tags added to a product.
func (m *MockSink) Tags(productID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.productTags[productID]...)
}

// CreateCalls reports how many collections were created.
func (m *MockSink) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// SmartTag returns the rule tag a smart collection was created with.
func (m *MockSink) SmartTag(title string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.smartTags[title]
}
