package stats

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/zf-portal/leadflow/store"
)

type fakeStore struct {
	leads    map[store.FunnelStage]int
	messages map[store.MessageStatus]int
	leadErr  error
}

func (f *fakeStore) ListLeadsByStage(ctx context.Context, stage store.FunnelStage, limit int) ([]*store.Lead, error) {
	if f.leadErr != nil {
		return nil, f.leadErr
	}
	list := make([]*store.Lead, f.leads[stage])
	for i := range list {
		list[i] = &store.Lead{Stage: stage}
	}
	return list, nil
}

func (f *fakeStore) ListScheduledMessages(ctx context.Context, find *store.FindScheduledMessage) ([]*store.ScheduledMessage, error) {
	count := 0
	if find.Status != nil {
		count = f.messages[*find.Status]
	}
	list := make([]*store.ScheduledMessage, count)
	for i := range list {
		list[i] = &store.ScheduledMessage{Status: *find.Status}
	}
	return list, nil
}

func TestCollect(t *testing.T) {
	collector := NewCollector(&fakeStore{
		leads: map[store.FunnelStage]int{
			store.StageAttraction:   5,
			store.StageRelationship: 3,
			store.StageConversion:   1,
		},
		messages: map[store.MessageStatus]int{
			store.MessagePending: 4,
			store.MessageSent:    10,
			store.MessageFailed:  2,
		},
	})

	snapshot := collector.Collect(context.Background())
	require.Equal(t, 9, snapshot.TotalLeads())
	require.Equal(t, 5, snapshot.StageCounts[store.StageAttraction])
	require.Equal(t, 4, snapshot.PendingMessages)
	require.Equal(t, 10, snapshot.SentMessages)
	require.Equal(t, 2, snapshot.FailedMessages)
	require.False(t, snapshot.CollectedAt.IsZero())
}

func TestCollectDegradesOnError(t *testing.T) {
	collector := NewCollector(&fakeStore{
		leadErr: errors.New("db down"),
		messages: map[store.MessageStatus]int{
			store.MessageSent: 7,
		},
	})

	snapshot := collector.Collect(context.Background())
	require.Zero(t, snapshot.TotalLeads())
	require.Equal(t, 7, snapshot.SentMessages)
}
