package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InteractionEvent records one applied dashboard action together with the
// selections in force afterwards.
type InteractionEvent struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id"`
	Action        ActionType `json:"action"`
	Region        string     `json:"region,omitempty"`
	Basemap       string     `json:"basemap,omitempty"`
	HazardLayer   string     `json:"hazard_layer,omitempty"`
	ExposureLayer string     `json:"exposure_layer,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// NewInteractionEvent describes action a applied to session sessionID,
// resulting in state s.
func NewInteractionEvent(sessionID string, a ActionType, s AppState) InteractionEvent {
	e := InteractionEvent{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Action:     a,
		Region:     s.SelectedRegion,
		Basemap:    s.SelectedBasemap,
		OccurredAt: clock.Now().UTC(),
	}
	if l, ok := s.Layer(LayerHazard); ok {
		e.HazardLayer = l.Label
	}
	if l, ok := s.Layer(LayerEnergy); ok {
		e.ExposureLayer = l.Label
	} else if l, ok := s.Layer(LayerAgriculture); ok {
		e.ExposureLayer = l.Label
	}
	return e
}

// OutputEvent is the serialized form destined for the events topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// SerializeInteractionEvent marshals an event keyed by session, so one
// session's events stay ordered on a single partition.
func SerializeInteractionEvent(e InteractionEvent) (OutputEvent, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize interaction event: %w", err)
	}
	return OutputEvent{
		Key:   []byte(e.SessionID),
		Value: data,
		Headers: map[string]string{
			"action":      string(e.Action),
			"occurred_at": e.OccurredAt.Format(time.RFC3339),
		},
	}, nil
}
