package dispatch

import (
	"context"
	"log/slog"

	flowerrors "github.com/zf-portal/leadflow/server/internal/errors"
	"github.com/zf-portal/leadflow/server/internal/observability"
	"github.com/zf-portal/leadflow/server/session"
	"github.com/zf-portal/leadflow/store"
)

// RunDrain processes the due pending messages in scheduled order. The batch
// is a contiguous due prefix: stopping conditions (window close, session not
// connected) leave the remainder pending for the next pass, while per-message
// data errors mark only that message failed.
func (r *Runner) RunDrain(ctx context.Context) {
	runCtx := observability.NewRunContext(slog.Default(), "drain")

	if !r.inBusinessHours(r.now()) {
		runCtx.Debug("outside business hours, skipping drain")
		return
	}

	messages, err := r.store.ListScheduledMessagesDue(ctx, r.now().Unix())
	if err != nil {
		runCtx.Error("failed to list due messages", err)
		observability.GlobalMetrics().RecordFailure("drain")
		return
	}
	if len(messages) == 0 {
		return
	}

	runCtx.Info("draining due messages", slog.Int("count", len(messages)))

	sent := 0
	for _, message := range messages {
		// The window can close mid-batch; everything not yet attempted stays
		// pending.
		if !r.inBusinessHours(r.now()) {
			runCtx.Info("business hours window closed mid-batch",
				slog.Int("remaining", len(messages)-sent))
			break
		}
		if status := r.sessionStatus(); status != session.StatusConnected {
			runCtx.Warn("session not connected, leaving batch pending",
				slog.String("session_status", string(status)))
			break
		}
		if err := r.sendOne(ctx, runCtx, message); err != nil {
			if flowerrors.IsCode(err, flowerrors.ErrCodeContextCanceled) {
				return
			}
			runCtx.Error("message delivery failed", err,
				slog.Int64("message_id", int64(message.ID)),
				slog.String(observability.LogFieldErrorCode, string(flowerrors.CodeOf(err, flowerrors.ErrCodeTransportFailed))),
			)
			continue
		}
		sent++
	}

	observability.GlobalMetrics().RecordProcessed("drain", sent)
	runCtx.Info("drain pass finished",
		slog.Int(observability.LogFieldProcessed, sent),
		slog.Int64(observability.LogFieldDuration, runCtx.DurationMs()))
}

// sendOne resolves, delivers and marks a single message. Unresolvable
// content or a dead lead reference fails the message without a gateway call.
func (r *Runner) sendOne(ctx context.Context, runCtx *observability.RunContext, message *store.ScheduledMessage) error {
	leadID := message.LeadID
	lead, err := r.store.GetLead(ctx, &store.FindLead{ID: &leadID})
	if err != nil {
		return flowerrors.Wrap(err, flowerrors.ErrCodeTransportFailed, "failed to load lead")
	}
	if lead == nil || lead.ChannelIdentity == "" {
		r.markFailed(ctx, runCtx, message)
		return flowerrors.DataInvalid("lead missing or has no channel identity")
	}

	text, err := r.resolveContent(ctx, message)
	if err != nil {
		r.markFailed(ctx, runCtx, message)
		return err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return flowerrors.Wrap(err, flowerrors.ErrCodeContextCanceled, "rate limiter interrupted")
	}

	messageID, err := r.gateway.SendText(ctx, lead.ChannelIdentity, text)
	if err != nil {
		r.markFailed(ctx, runCtx, message)
		return flowerrors.TransportFailed("gateway send failed", err)
	}
	observability.GlobalMetrics().RecordSend()

	now := r.now().Unix()
	swapped, err := r.store.MarkScheduledMessage(ctx, &store.UpdateScheduledMessageStatus{
		ID:             message.ID,
		ExpectedStatus: store.MessagePending,
		Status:         store.MessageSent,
		SentTs:         &now,
	})
	if err != nil {
		return flowerrors.Wrap(err, flowerrors.ErrCodeTransportFailed, "failed to mark message sent")
	}
	if !swapped {
		// Delivered but concurrently cancelled; the interaction still
		// happened, record it.
		runCtx.Warn("message no longer pending after send",
			slog.Int64("message_id", int64(message.ID)))
	}

	if _, err := r.store.CreateInteraction(ctx, &store.Interaction{
		LeadID:    lead.ID,
		Type:      store.InteractionMessage,
		Direction: store.DirectionOutbound,
		Content:   text,
		CreatedTs: now,
	}); err != nil {
		runCtx.Error("failed to record outbound interaction", err,
			slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
	}
	if err := r.store.TouchLastContact(ctx, lead.ID, now); err != nil {
		runCtx.Error("failed to update last contact", err,
			slog.Int64(observability.LogFieldLeadID, int64(lead.ID)))
	}

	runCtx.Debug("message delivered",
		slog.Int64("message_id", int64(message.ID)),
		slog.Int64(observability.LogFieldLeadID, int64(lead.ID)),
		slog.String("gateway_message_id", messageID))
	return nil
}

// resolveContent returns the deliverable text: direct content wins, then the
// template reference. Neither set is a data error.
func (r *Runner) resolveContent(ctx context.Context, message *store.ScheduledMessage) (string, error) {
	if message.Content != nil && *message.Content != "" {
		return *message.Content, nil
	}
	if message.TemplateID != nil {
		text, err := r.renderer.RenderRef(ctx, *message.TemplateID, message.Params)
		if err != nil {
			return "", flowerrors.TemplateUnresolved("failed to render template", err)
		}
		return text, nil
	}
	return "", flowerrors.DataInvalid("message has neither content nor template")
}

func (r *Runner) markFailed(ctx context.Context, runCtx *observability.RunContext, message *store.ScheduledMessage) {
	if _, err := r.store.MarkScheduledMessage(ctx, &store.UpdateScheduledMessageStatus{
		ID:             message.ID,
		ExpectedStatus: store.MessagePending,
		Status:         store.MessageFailed,
	}); err != nil {
		runCtx.Error("failed to mark message failed", err,
			slog.Int64("message_id", int64(message.ID)))
	}
}
