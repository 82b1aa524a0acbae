package model

// EventType discriminates pipeline progress events on the push channel.
type EventType string

// Event type constants. The vocabulary matches what streaming consumers
// expect: a run opens with start, emits per-unit events, and closes with
// exactly one complete or error.
const (
	EventStart             EventType = "start"
	EventBatchStart        EventType = "batch_start"
	EventProgress          EventType = "progress"
	EventCollectionStart   EventType = "collection_start"
	EventCollectionCreated EventType = "collection_created"
	EventCollectionError   EventType = "collection_error"
	EventProductAdded      EventType = "product_added"
	EventError             EventType = "error"
	EventComplete          EventType = "complete"
)

// Event is one progress notification from the classification or sync
// engine. Fields beyond Type are populated per event type; zero values are
// omitted on the wire.
type Event struct {
	Type         EventType `json:"type"`
	Message      string    `json:"message,omitempty"`
	Collection   string    `json:"collection,omitempty"`
	Product      string    `json:"product,omitempty"`
	Status       string    `json:"status,omitempty"`
	CollectionID int64     `json:"collection_id,omitempty"`
	Batch        int       `json:"batch,omitempty"`
	Batches      int       `json:"batches,omitempty"`
	Progress     int       `json:"progress,omitempty"`
	Count        int       `json:"count,omitempty"`
	Total        int       `json:"total,omitempty"`
	Collections  int       `json:"collections,omitempty"`
	SuccessCount int       `json:"success_count,omitempty"`
}
