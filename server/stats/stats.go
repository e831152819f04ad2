// Package stats provides simple local funnel statistics. This is a
// lightweight alternative to an external analytics pipeline: one snapshot,
// computed on demand from the store, logged by the dispatcher.
package stats

import (
	"context"
	"time"

	"github.com/zf-portal/leadflow/store"
)

// Snapshot is a point-in-time view of the funnel.
type Snapshot struct {
	// Leads per stage.
	StageCounts map[store.FunnelStage]int

	// Outbound queue health.
	PendingMessages int
	SentMessages    int
	FailedMessages  int

	CollectedAt time.Time
}

// TotalLeads sums the stage counts.
func (s *Snapshot) TotalLeads() int {
	total := 0
	for _, count := range s.StageCounts {
		total += count
	}
	return total
}

// Store is the slice of the persistence layer the collector reads.
type Store interface {
	ListLeadsByStage(ctx context.Context, stage store.FunnelStage, limit int) ([]*store.Lead, error)
	ListScheduledMessages(ctx context.Context, find *store.FindScheduledMessage) ([]*store.ScheduledMessage, error)
}

// countCap bounds a single stage or status count; a personal prospecting base
// stays far below it.
const countCap = 10000

// Collector computes funnel snapshots.
type Collector struct {
	store Store
}

// NewCollector creates a statistics collector.
func NewCollector(s Store) *Collector {
	return &Collector{store: s}
}

// Collect builds a fresh snapshot. Partial failures degrade the snapshot
// instead of failing it: a count that cannot be read stays zero.
func (c *Collector) Collect(ctx context.Context) *Snapshot {
	snapshot := &Snapshot{
		StageCounts: make(map[store.FunnelStage]int),
		CollectedAt: time.Now(),
	}

	for _, stage := range []store.FunnelStage{
		store.StageUnknown,
		store.StageAttraction,
		store.StageRelationship,
		store.StageConversion,
		store.StageCustomer,
	} {
		leads, err := c.store.ListLeadsByStage(ctx, stage, countCap)
		if err != nil {
			continue
		}
		snapshot.StageCounts[stage] = len(leads)
	}

	snapshot.PendingMessages = c.countMessages(ctx, store.MessagePending)
	snapshot.SentMessages = c.countMessages(ctx, store.MessageSent)
	snapshot.FailedMessages = c.countMessages(ctx, store.MessageFailed)

	return snapshot
}

func (c *Collector) countMessages(ctx context.Context, status store.MessageStatus) int {
	limit := countCap
	messages, err := c.store.ListScheduledMessages(ctx, &store.FindScheduledMessage{
		Status: &status,
		Limit:  &limit,
	})
	if err != nil {
		return 0
	}
	return len(messages)
}
