package store

import (
	"context"
)

// Interaction is a single append-only record of contact with a lead.
type Interaction struct {
	ID        int32
	LeadID    int32
	Type      InteractionType
	Direction Direction
	Content   string
	CreatedTs int64
}

// FindInteraction is the find condition for interactions.
type FindInteraction struct {
	LeadID *int32

	Direction *Direction

	// CreatedAfter selects interactions strictly newer than the timestamp.
	CreatedAfter *int64

	Limit *int
}

func (s *Store) CreateInteraction(ctx context.Context, create *Interaction) (*Interaction, error) {
	return s.driver.CreateInteraction(ctx, create)
}

// ListInteractions returns a lead's interactions ordered by creation time
// ascending (most recent last).
func (s *Store) ListInteractions(ctx context.Context, find *FindInteraction) ([]*Interaction, error) {
	return s.driver.ListInteractions(ctx, find)
}

// ListOutboundSince returns outbound interactions for a lead newer than the
// given timestamp. The dispatch scheduler uses this to enforce cadence before
// enqueueing, never after the fact.
func (s *Store) ListOutboundSince(ctx context.Context, leadID int32, since int64) ([]*Interaction, error) {
	outbound := DirectionOutbound
	return s.driver.ListInteractions(ctx, &FindInteraction{
		LeadID:       &leadID,
		Direction:    &outbound,
		CreatedAfter: &since,
	})
}
