package engine

import (
	"context"

	"github.com/Veraticus/shopsort/internal/llm"
	"github.com/Veraticus/shopsort/internal/model"
)

// Classifier is the language model boundary for the engine.
type Classifier interface {
	Chat(ctx context.Context, req llm.Request) (string, error)
}

// Reporter receives progress events during a classification run.
type Reporter interface {
	Report(event model.Event)
}

// NopReporter discards all events.
type NopReporter struct{}

// Report implements Reporter.
func (NopReporter) Report(model.Event) {}
