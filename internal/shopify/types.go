package shopify

// wireProduct is the subset of the API product payload we consume. Tags come
// over the wire as a single comma-separated string.
type wireProduct struct {
	Title string `json:"title"`
	Tags  string `json:"tags"`
	ID    int64  `json:"id"`
}

type productsPage struct {
	Products []wireProduct `json:"products"`
}

type productEnvelope struct {
	Product wireProduct `json:"product"`
}

// Collection is a custom or smart collection on the storefront.
type Collection struct {
	Title string `json:"title"`
	ID    int64  `json:"id"`
}

type customCollectionsPage struct {
	CustomCollections []Collection `json:"custom_collections"`
}

type smartCollectionsPage struct {
	SmartCollections []Collection `json:"smart_collections"`
}

type customCollectionEnvelope struct {
	CustomCollection Collection `json:"custom_collection"`
}

type smartCollectionRule struct {
	Column    string `json:"column"`
	Relation  string `json:"relation"`
	Condition string `json:"condition"`
}

type smartCollectionPayload struct {
	Title     string                `json:"title"`
	Rules     []smartCollectionRule `json:"rules"`
	Published bool                  `json:"published"`
}

type smartCollectionEnvelope struct {
	SmartCollection smartCollectionPayload `json:"smart_collection"`
}

type smartCollectionCreated struct {
	SmartCollection Collection `json:"smart_collection"`
}

type collectPayload struct {
	ProductID    int64 `json:"product_id"`
	CollectionID int64 `json:"collection_id"`
}

type collectEnvelope struct {
	Collect collectPayload `json:"collect"`
}
