package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/zf-portal/leadflow/server/internal/observability"
	"github.com/zf-portal/leadflow/store"
)

const (
	onboardingSilence = 24 * time.Hour

	// Template slot within a stage: 0 opens the conversation, 1 follows up.
	templateOpener   = 0
	templateFollowUp = 1
)

// followUpWaitDays is the minimum days in stage (and of outbound silence)
// before a follow-up is enqueued.
var followUpWaitDays = map[store.FunnelStage]int{
	store.StageAttraction:   3,
	store.StageRelationship: 5,
	store.StageConversion:   2,
}

// RunOnboarding enqueues a welcome message for attraction-stage leads that
// have had no outbound contact in the last 24 hours.
func (r *Runner) RunOnboarding(ctx context.Context) {
	runCtx := observability.NewRunContext(slog.Default(), "onboarding")

	leads, err := r.store.ListLeadsByStage(ctx, store.StageAttraction, r.config.CandidateFetchCap)
	if err != nil {
		runCtx.Error("failed to list attraction leads", err)
		observability.GlobalMetrics().RecordFailure("onboarding")
		return
	}

	templates, err := r.store.ListFunnelTemplatesByStage(ctx, store.StageAttraction)
	if err != nil {
		runCtx.Error("failed to list stage templates", err)
		observability.GlobalMetrics().RecordFailure("onboarding")
		return
	}
	template := templateAt(templates, templateOpener)
	if template == nil {
		runCtx.Warn("no templates for attraction stage, skipping onboarding")
		return
	}

	now := r.now()
	enqueued := 0
	for _, lead := range leads {
		if enqueued >= r.config.OnboardingCap {
			break
		}
		eligible, err := r.cadenceClear(ctx, lead.ID, now.Add(-onboardingSilence))
		if err != nil {
			runCtx.Error("failed to check cadence", err,
				slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
			continue
		}
		if !eligible {
			continue
		}

		// Spread sends over the morning instead of a burst at the slot.
		delay := time.Duration(15+r.rng.Intn(31)) * time.Minute
		if err := r.enqueue(ctx, lead, template, now.Add(delay)); err != nil {
			runCtx.Error("failed to enqueue onboarding message", err,
				slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
			continue
		}
		enqueued++
	}

	observability.GlobalMetrics().RecordProcessed("onboarding", enqueued)
	runCtx.Info("onboarding pass finished", slog.Int(observability.LogFieldProcessed, enqueued))
}

// RunFollowUp enqueues stage follow-ups for leads that have sat in their
// stage past the stage wait with no outbound contact in that window.
func (r *Runner) RunFollowUp(ctx context.Context) {
	runCtx := observability.NewRunContext(slog.Default(), "follow-up")

	now := r.now()
	total := 0
	for stage, waitDays := range followUpWaitDays {
		enqueued, err := r.followUpStage(ctx, runCtx, stage, waitDays, now)
		if err != nil {
			runCtx.Error("follow-up stage pass failed", err,
				slog.String(observability.LogFieldStage, stage.String()))
			observability.GlobalMetrics().RecordFailure("follow-up")
			continue
		}
		total += enqueued
	}

	observability.GlobalMetrics().RecordProcessed("follow-up", total)
	runCtx.Info("follow-up pass finished", slog.Int(observability.LogFieldProcessed, total))
}

func (r *Runner) followUpStage(ctx context.Context, runCtx *observability.RunContext, stage store.FunnelStage, waitDays int, now time.Time) (int, error) {
	leads, err := r.store.ListLeadsByStage(ctx, stage, r.config.CandidateFetchCap)
	if err != nil {
		return 0, err
	}

	templates, err := r.store.ListFunnelTemplatesByStage(ctx, stage)
	if err != nil {
		return 0, err
	}
	template := templateAt(templates, templateFollowUp)
	if template == nil {
		runCtx.Warn("no templates for stage, skipping follow-up",
			slog.String(observability.LogFieldStage, stage.String()))
		return 0, nil
	}

	wait := time.Duration(waitDays) * 24 * time.Hour
	enqueued := 0
	for _, lead := range leads {
		if enqueued >= r.config.FollowUpCapPer {
			break
		}
		if lead.DaysInStage(now) < waitDays {
			continue
		}
		eligible, err := r.cadenceClear(ctx, lead.ID, now.Add(-wait))
		if err != nil {
			runCtx.Error("failed to check cadence", err,
				slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
			continue
		}
		if !eligible {
			continue
		}

		// Deterministic per-lead spread keeps repeated passes from moving a
		// lead's slot around.
		delay := time.Duration(90+int(lead.ID)%60) * time.Minute
		if err := r.enqueue(ctx, lead, template, now.Add(delay)); err != nil {
			runCtx.Error("failed to enqueue follow-up message", err,
				slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// cadenceClear reports whether the lead has neither outbound contact since
// the given time nor a message already waiting in the queue.
func (r *Runner) cadenceClear(ctx context.Context, leadID int32, since time.Time) (bool, error) {
	outbound, err := r.store.ListOutboundSince(ctx, leadID, since.Unix())
	if err != nil {
		return false, err
	}
	if len(outbound) > 0 {
		return false, nil
	}

	pending := store.MessagePending
	queued, err := r.store.ListScheduledMessages(ctx, &store.FindScheduledMessage{
		LeadID: &leadID,
		Status: &pending,
	})
	if err != nil {
		return false, err
	}
	return len(queued) == 0, nil
}

func (r *Runner) enqueue(ctx context.Context, lead *store.Lead, template *store.FunnelTemplate, at time.Time) error {
	templateID := template.ID
	_, err := r.store.CreateScheduledMessage(ctx, &store.ScheduledMessage{
		LeadID:      lead.ID,
		TemplateID:  &templateID,
		Params:      messageParams(lead),
		ScheduledTs: at.Unix(),
	})
	return err
}
