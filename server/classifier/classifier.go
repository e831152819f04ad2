// Package classifier assigns leads a funnel stage and an engagement score
// from their profile data and interaction history.
package classifier

import (
	"context"

	"github.com/zf-portal/leadflow/server/ai"
	"github.com/zf-portal/leadflow/store"
)

// Result is the outcome of a classification pass.
type Result struct {
	Stage store.FunnelStage
	Score int
}

// Classifier scores a lead against its interaction history.
type Classifier interface {
	Classify(ctx context.Context, lead *store.Lead, interactions []*store.Interaction) (*Result, error)
}

// New picks the classification strategy. With a chat model available the
// semantic strategy runs first with the heuristic as its fallback; without
// one the heuristic runs alone.
func New(chat ai.ChatCompleter) Classifier {
	heuristic := NewHeuristic()
	if chat == nil {
		return heuristic
	}
	return NewSemantic(chat, heuristic)
}
