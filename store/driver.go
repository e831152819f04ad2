package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Lead model related methods.
	CreateLead(ctx context.Context, create *Lead) (*Lead, error)
	ListLeads(ctx context.Context, find *FindLead) ([]*Lead, error)
	UpdateLead(ctx context.Context, update *UpdateLead) (*Lead, error)

	// Interaction model related methods. Interactions are append-only.
	CreateInteraction(ctx context.Context, create *Interaction) (*Interaction, error)
	ListInteractions(ctx context.Context, find *FindInteraction) ([]*Interaction, error)

	// ScheduledMessage model related methods.
	CreateScheduledMessage(ctx context.Context, create *ScheduledMessage) (*ScheduledMessage, error)
	ListScheduledMessages(ctx context.Context, find *FindScheduledMessage) ([]*ScheduledMessage, error)
	UpdateScheduledMessageStatus(ctx context.Context, update *UpdateScheduledMessageStatus) (bool, error)

	// FunnelTemplate model related methods.
	CreateFunnelTemplate(ctx context.Context, create *FunnelTemplate) (*FunnelTemplate, error)
	ListFunnelTemplates(ctx context.Context, find *FindFunnelTemplate) ([]*FunnelTemplate, error)
}
