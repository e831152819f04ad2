package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/zf-portal/leadflow/server/ai"
	"github.com/zf-portal/leadflow/store"
)

type fakeChat struct {
	reply string
	err   error
	calls int
}

func (f *fakeChat) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func semanticFixture() (*store.Lead, []*store.Interaction) {
	now := time.Now()
	lead := &store.Lead{ID: 1, Name: "Ana", Company: "Acme"}
	interactions := []*store.Interaction{
		{Type: store.InteractionRespond, Direction: store.DirectionInbound, Content: "quero saber mais", CreatedTs: now.Add(-time.Hour).Unix()},
	}
	return lead, interactions
}

func TestSemanticParsesModelReply(t *testing.T) {
	chat := &fakeChat{reply: `{"stage": "relationship", "score": 55}`}
	s := NewSemantic(chat, NewHeuristic())
	lead, interactions := semanticFixture()

	result, err := s.Classify(context.Background(), lead, interactions)
	require.NoError(t, err)
	require.Equal(t, store.StageRelationship, result.Stage)
	require.Equal(t, 55, result.Score)
}

func TestSemanticStripsCodeFences(t *testing.T) {
	chat := &fakeChat{reply: "```json\n{\"stage\": \"conversion\", \"score\": 90}\n```"}
	s := NewSemantic(chat, NewHeuristic())
	lead, interactions := semanticFixture()

	result, err := s.Classify(context.Background(), lead, interactions)
	require.NoError(t, err)
	require.Equal(t, store.StageConversion, result.Stage)
	require.Equal(t, 90, result.Score)
}

func TestSemanticFallsBackOnChatError(t *testing.T) {
	chat := &fakeChat{err: errors.New("model unavailable")}
	s := NewSemantic(chat, NewHeuristic())
	lead, interactions := semanticFixture()

	result, err := s.Classify(context.Background(), lead, interactions)
	require.NoError(t, err)
	// Heuristic verdict: one inbound response, nothing else.
	require.Equal(t, store.StageUnknown, result.Stage)
	require.Equal(t, 2, result.Score)
}

func TestSemanticFallsBackOnBadReply(t *testing.T) {
	for _, reply := range []string{
		"não consigo classificar",
		`{"stage": "lukewarm", "score": 50}`,
		`{"stage": "attraction", "score": 300}`,
	} {
		chat := &fakeChat{reply: reply}
		s := NewSemantic(chat, NewHeuristic())
		lead, interactions := semanticFixture()

		result, err := s.Classify(context.Background(), lead, interactions)
		require.NoError(t, err, "reply %q", reply)
		require.Equal(t, store.StageUnknown, result.Stage, "reply %q", reply)
	}
}

func TestSemanticSkipsModelWithoutInteractions(t *testing.T) {
	chat := &fakeChat{reply: `{"stage": "conversion", "score": 95}`}
	s := NewSemantic(chat, NewHeuristic())

	result, err := s.Classify(context.Background(), &store.Lead{ID: 1}, nil)
	require.NoError(t, err)
	require.Equal(t, store.StageUnknown, result.Stage)
	require.Equal(t, 0, result.Score)
	require.Zero(t, chat.calls)
}

func TestNewPicksStrategy(t *testing.T) {
	require.IsType(t, &Heuristic{}, New(nil))
	require.IsType(t, &Semantic{}, New(&fakeChat{}))
}
