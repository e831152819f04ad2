package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/zf-portal/leadflow/server/internal/observability"
	"github.com/zf-portal/leadflow/store"
)

// classificationMaxAge is how long a classification stays fresh.
const classificationMaxAge = 24 * time.Hour

// RunReclassify re-scores leads never classified or whose classification has
// gone stale, and persists the fresh stage and score.
func (r *Runner) RunReclassify(ctx context.Context) {
	runCtx := observability.NewRunContext(slog.Default(), "reclassify")

	staleBefore := r.now().Add(-classificationMaxAge).Unix()
	leads, err := r.store.ListLeadsForClassification(ctx, staleBefore, r.config.ReclassifyCap)
	if err != nil {
		runCtx.Error("failed to list stale leads", err)
		observability.GlobalMetrics().RecordFailure("reclassify")
		return
	}
	if len(leads) == 0 {
		return
	}

	runCtx.Info("reclassifying stale leads", slog.Int("count", len(leads)))

	processed := 0
	for _, lead := range leads {
		select {
		case <-ctx.Done():
			runCtx.Info("reclassify pass cancelled", slog.Int(observability.LogFieldProcessed, processed))
			return
		default:
		}

		leadID := lead.ID
		interactions, err := r.store.ListInteractions(ctx, &store.FindInteraction{LeadID: &leadID})
		if err != nil {
			runCtx.Error("failed to list interactions", err,
				slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
			continue
		}

		result, err := r.classifier.Classify(ctx, lead, interactions)
		if err != nil {
			runCtx.Error("classification failed", err,
				slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
			continue
		}

		if _, err := r.store.UpdateFunnelStage(ctx, lead.ID, result.Stage, result.Score); err != nil {
			runCtx.Error("failed to persist classification", err,
				slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
			continue
		}

		if result.Stage != lead.Stage {
			runCtx.Info("lead changed stage",
				slog.Int64(observability.LogFieldLeadID, int64(lead.ID)),
				slog.String("from", lead.Stage.String()),
				slog.String("to", result.Stage.String()),
				slog.Int("score", result.Score))
		}
		processed++
	}

	observability.GlobalMetrics().RecordProcessed("reclassify", processed)
	runCtx.Info("reclassify pass finished",
		slog.Int(observability.LogFieldProcessed, processed),
		slog.Int64(observability.LogFieldDuration, runCtx.DurationMs()))

	snapshot := r.stats.Collect(ctx)
	runCtx.Info("funnel snapshot",
		slog.Int("total_leads", snapshot.TotalLeads()),
		slog.Int("attraction", snapshot.StageCounts[store.StageAttraction]),
		slog.Int("relationship", snapshot.StageCounts[store.StageRelationship]),
		slog.Int("conversion", snapshot.StageCounts[store.StageConversion]),
		slog.Int("pending_messages", snapshot.PendingMessages),
		slog.Int("failed_messages", snapshot.FailedMessages))
}
