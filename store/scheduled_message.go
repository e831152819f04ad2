package store

import (
	"context"

	"github.com/lithammer/shortuuid/v4"
)

// ScheduledMessage is a queued outbound message. Status moves from pending to
// exactly one of sent, failed or cancelled; a failed message is never
// re-enqueued automatically.
type ScheduledMessage struct {
	ID  int32
	UID string

	LeadID  int32
	Channel string

	// Content and TemplateID are alternatives: a message carries direct text
	// or a template reference with params. Neither set is a data error the
	// drain pass turns into a failed status without a send attempt.
	Content    *string
	TemplateID *int32
	Params     map[string]string

	ScheduledTs int64
	Status      MessageStatus
	SentTs      *int64
	CreatedTs   int64
}

// FindScheduledMessage is the find condition for scheduled messages.
type FindScheduledMessage struct {
	ID     *int32
	LeadID *int32
	Status *MessageStatus

	// ScheduledBefore selects messages with scheduled_ts <= the timestamp.
	ScheduledBefore *int64

	Limit *int
}

// UpdateScheduledMessageStatus is a compare-and-set status transition.
// ExpectedStatus guards against a concurrent external update: the driver
// updates the row only while it still holds the expected status and reports
// whether the swap applied.
type UpdateScheduledMessageStatus struct {
	ID             int32
	ExpectedStatus MessageStatus
	Status         MessageStatus
	SentTs         *int64
}

func (s *Store) CreateScheduledMessage(ctx context.Context, create *ScheduledMessage) (*ScheduledMessage, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if create.Status == "" {
		create.Status = MessagePending
	}
	if create.Channel == "" {
		create.Channel = ChannelWhatsApp
	}
	return s.driver.CreateScheduledMessage(ctx, create)
}

func (s *Store) ListScheduledMessages(ctx context.Context, find *FindScheduledMessage) ([]*ScheduledMessage, error) {
	return s.driver.ListScheduledMessages(ctx, find)
}

// ListScheduledMessagesDue returns pending messages due at or before now,
// ordered by scheduled_ts ascending so a drain pass processes a contiguous
// due prefix.
func (s *Store) ListScheduledMessagesDue(ctx context.Context, now int64) ([]*ScheduledMessage, error) {
	pending := MessagePending
	return s.driver.ListScheduledMessages(ctx, &FindScheduledMessage{
		Status:          &pending,
		ScheduledBefore: &now,
	})
}

// MarkScheduledMessage transitions a message's status, returning false when
// the row no longer held the expected status.
func (s *Store) MarkScheduledMessage(ctx context.Context, update *UpdateScheduledMessageStatus) (bool, error) {
	return s.driver.UpdateScheduledMessageStatus(ctx, update)
}
