package pipeline

import (
	"context"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

// EventTransformer implements Transformer by serializing events as JSON.
type EventTransformer struct{}

// NewTransformer creates an EventTransformer.
func NewTransformer() *EventTransformer {
	return &EventTransformer{}
}

func (t *EventTransformer) Transform(_ context.Context, event domain.InteractionEvent) (domain.OutputEvent, error) {
	return domain.SerializeInteractionEvent(event)
}
