package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zf-portal/leadflow/store"
)

func fixedHeuristic(now time.Time) *Heuristic {
	h := NewHeuristic()
	h.now = func() time.Time { return now }
	return h
}

func interactionAt(t store.InteractionType, d store.Direction, content string, ts time.Time) *store.Interaction {
	return &store.Interaction{Type: t, Direction: d, Content: content, CreatedTs: ts.Unix()}
}

func TestClassifyNoInteractions(t *testing.T) {
	h := NewHeuristic()
	lead := &store.Lead{Email: "a@b.com", Phone: "+5511999999999", Company: "Acme"}

	result, err := h.Classify(context.Background(), lead, nil)
	require.NoError(t, err)
	require.Equal(t, store.StageUnknown, result.Stage)
	require.Equal(t, 0, result.Score)
}

func TestClassifyAttraction(t *testing.T) {
	now := time.Now()
	h := fixedHeuristic(now)

	// Profile data (17) + two outbound messages (6) + one reply (2) and
	// recent activity lands in attraction territory.
	lead := &store.Lead{Email: "a@b.com", Phone: "+5511999999999", Company: "Acme", Title: "CTO", Industry: "SaaS"}
	interactions := []*store.Interaction{
		interactionAt(store.InteractionMessage, store.DirectionOutbound, "olá", now.Add(-48*time.Hour)),
		interactionAt(store.InteractionMessage, store.DirectionOutbound, "seguindo", now.Add(-24*time.Hour)),
		interactionAt(store.InteractionRespond, store.DirectionInbound, "oi, tudo bem", now.Add(-12*time.Hour)),
	}

	result, err := h.Classify(context.Background(), lead, interactions)
	require.NoError(t, err)
	require.Equal(t, store.StageAttraction, result.Stage)
	require.Equal(t, 25, result.Score)
}

func TestClassifyConversionWithIntent(t *testing.T) {
	now := time.Now()
	h := fixedHeuristic(now)

	lead := &store.Lead{
		Email: "a@b.com", Phone: "+5511999999999", Company: "Acme",
		Title: "CTO", Industry: "SaaS", Website: "acme.com", ProfileURL: "linkedin.com/in/x",
	}
	interactions := []*store.Interaction{
		interactionAt(store.InteractionMessage, store.DirectionOutbound, "olá", now.Add(-72*time.Hour)),
		interactionAt(store.InteractionRespond, store.DirectionInbound, "qual o preço do plano?", now.Add(-48*time.Hour)),
		interactionAt(store.InteractionRespond, store.DirectionInbound, "quero uma demonstração", now.Add(-36*time.Hour)),
		interactionAt(store.InteractionRespond, store.DirectionInbound, "vamos contratar", now.Add(-24*time.Hour)),
		interactionAt(store.InteractionMeeting, store.DirectionInbound, "reunião de alinhamento", now.Add(-12*time.Hour)),
	}

	// profile 20 (capped) + message 3 + responses 6 + meeting 10 + intent 45.
	result, err := h.Classify(context.Background(), lead, interactions)
	require.NoError(t, err)
	require.Equal(t, store.StageConversion, result.Stage)
	require.Equal(t, 84, result.Score)
}

func TestContactOnlyProfileWithPricingQuestion(t *testing.T) {
	now := time.Now()
	h := fixedHeuristic(now)

	// Email and phone only (10) + 3 inbound messages (9) + pricing (10) = 29.
	lead := &store.Lead{Email: "a@b.com", Phone: "+5511999999999"}
	interactions := []*store.Interaction{
		interactionAt(store.InteractionMessage, store.DirectionInbound, "oi", now.Add(-3*time.Hour)),
		interactionAt(store.InteractionMessage, store.DirectionInbound, "vi o site de vocês", now.Add(-2*time.Hour)),
		interactionAt(store.InteractionMessage, store.DirectionInbound, "qual o preço?", now.Add(-time.Hour)),
	}

	result, err := h.Classify(context.Background(), lead, interactions)
	require.NoError(t, err)
	require.Equal(t, store.StageAttraction, result.Stage)
	require.Equal(t, 29, result.Score)
}

func TestIntentBonusAwardedOncePerClass(t *testing.T) {
	now := time.Now()
	h := fixedHeuristic(now)

	interactions := []*store.Interaction{
		interactionAt(store.InteractionRespond, store.DirectionInbound, "qual o preço?", now.Add(-3*time.Hour)),
		interactionAt(store.InteractionRespond, store.DirectionInbound, "e o valor anual?", now.Add(-2*time.Hour)),
		interactionAt(store.InteractionRespond, store.DirectionInbound, "me manda o custo", now.Add(-time.Hour)),
	}

	// Three pricing mentions, one +10 bonus: responses 6 + pricing 10.
	result, err := h.Classify(context.Background(), &store.Lead{}, interactions)
	require.NoError(t, err)
	require.Equal(t, 16, result.Score)
}

func TestIntentIgnoresOutboundContent(t *testing.T) {
	now := time.Now()
	h := fixedHeuristic(now)

	interactions := []*store.Interaction{
		interactionAt(store.InteractionMessage, store.DirectionOutbound, "nosso preço é ótimo, agende uma demo e venha contratar", now.Add(-time.Hour)),
	}

	result, err := h.Classify(context.Background(), &store.Lead{}, interactions)
	require.NoError(t, err)
	require.Equal(t, 3, result.Score)
}

func TestEngagementCaps(t *testing.T) {
	now := time.Now()
	h := fixedHeuristic(now)

	var interactions []*store.Interaction
	for i := 0; i < 10; i++ {
		interactions = append(interactions, interactionAt(store.InteractionMessage, store.DirectionOutbound, "msg", now.Add(-time.Hour)))
		interactions = append(interactions, interactionAt(store.InteractionRespond, store.DirectionInbound, "ok", now.Add(-time.Hour)))
		interactions = append(interactions, interactionAt(store.InteractionMeeting, store.DirectionInbound, "call", now.Add(-time.Hour)))
	}

	// 15 + 10 + 20, each component at its cap.
	result, err := h.Classify(context.Background(), &store.Lead{}, interactions)
	require.NoError(t, err)
	require.Equal(t, store.StageRelationship, result.Stage)
	require.Equal(t, 45, result.Score)
}

func TestDecayAppliesAfterGracePeriod(t *testing.T) {
	now := time.Now()
	h := fixedHeuristic(now)

	fresh := []*store.Interaction{
		interactionAt(store.InteractionRespond, store.DirectionInbound, "oi", now.Add(-29*24*time.Hour)),
	}
	result, err := h.Classify(context.Background(), &store.Lead{Email: "a@b.com", Phone: "+55", Company: "Acme"}, fresh)
	require.NoError(t, err)
	require.Equal(t, 15, result.Score)

	stale := []*store.Interaction{
		interactionAt(store.InteractionRespond, store.DirectionInbound, "oi", now.Add(-50*24*time.Hour)),
	}
	result, err = h.Classify(context.Background(), &store.Lead{Email: "a@b.com", Phone: "+55", Company: "Acme"}, stale)
	require.NoError(t, err)
	// 13 + 2 - 50/10.
	require.Equal(t, 10, result.Score)
}

func TestScoreClampedAtZero(t *testing.T) {
	now := time.Now()
	h := fixedHeuristic(now)

	interactions := []*store.Interaction{
		interactionAt(store.InteractionMessage, store.DirectionOutbound, "olá", now.Add(-300*24*time.Hour)),
	}

	result, err := h.Classify(context.Background(), &store.Lead{}, interactions)
	require.NoError(t, err)
	require.Equal(t, 0, result.Score)
	require.Equal(t, store.StageUnknown, result.Stage)
}

func TestStageThresholds(t *testing.T) {
	tests := []struct {
		score int
		want  store.FunnelStage
	}{
		{0, store.StageUnknown},
		{9, store.StageUnknown},
		{10, store.StageAttraction},
		{39, store.StageAttraction},
		{40, store.StageRelationship},
		{79, store.StageRelationship},
		{80, store.StageConversion},
		{100, store.StageConversion},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, stageForScore(tt.score), "score %d", tt.score)
	}
}
