package store

import (
	"context"
	"strconv"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Lead is the object representing a prospective contact.
type Lead struct {
	ID  int32
	UID string

	Name            string
	Email           string
	Phone           string
	ChannelIdentity string // recipient identity on the delivery channel, e.g. a WhatsApp number
	Company         string
	Title           string
	Industry        string
	Website         string
	ProfileURL      string

	Stage            FunnelStage
	Score            int
	EnteredStageTs   int64
	LastClassifiedTs *int64
	LastContactTs    *int64

	CreatedTs int64
	UpdatedTs int64
}

// DaysInStage derives how long the lead has been in its current stage.
func (l *Lead) DaysInStage(now time.Time) int {
	if l.EnteredStageTs == 0 {
		return 0
	}
	d := now.Sub(time.Unix(l.EnteredStageTs, 0))
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// FindLead is the find condition for leads.
type FindLead struct {
	ID  *int32
	UID *string

	Stage *FunnelStage

	// ClassifiedBefore selects leads never classified or last classified
	// before the given timestamp.
	ClassifiedBefore *int64

	Limit  *int
	Offset *int
}

// UpdateLead is the update request for a lead. Nil fields are left untouched.
type UpdateLead struct {
	ID int32

	Name            *string
	Email           *string
	Phone           *string
	ChannelIdentity *string
	Company         *string
	Title           *string
	Industry        *string
	Website         *string
	ProfileURL      *string

	Stage            *FunnelStage
	Score            *int
	EnteredStageTs   *int64
	LastClassifiedTs *int64
	LastContactTs    *int64
}

func (s *Store) CreateLead(ctx context.Context, create *Lead) (*Lead, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if create.Stage == "" {
		create.Stage = StageUnknown
	}
	return s.driver.CreateLead(ctx, create)
}

func (s *Store) GetLead(ctx context.Context, find *FindLead) (*Lead, error) {
	list, err := s.driver.ListLeads(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	lead := list[0]
	s.leadCache.Set(leadCacheKey(lead.ID), lead)
	return lead, nil
}

func (s *Store) ListLeads(ctx context.Context, find *FindLead) ([]*Lead, error) {
	return s.driver.ListLeads(ctx, find)
}

// ListLeadsByStage lists leads currently sitting in the given stage.
func (s *Store) ListLeadsByStage(ctx context.Context, stage FunnelStage, limit int) ([]*Lead, error) {
	return s.driver.ListLeads(ctx, &FindLead{Stage: &stage, Limit: &limit})
}

// ListLeadsForClassification selects leads never classified or whose last
// classification is older than staleBefore.
func (s *Store) ListLeadsForClassification(ctx context.Context, staleBefore int64, limit int) ([]*Lead, error) {
	return s.driver.ListLeads(ctx, &FindLead{ClassifiedBefore: &staleBefore, Limit: &limit})
}

func (s *Store) UpdateLead(ctx context.Context, update *UpdateLead) (*Lead, error) {
	lead, err := s.driver.UpdateLead(ctx, update)
	if err != nil {
		return nil, err
	}
	s.leadCache.Delete(leadCacheKey(update.ID))
	return lead, nil
}

// UpdateFunnelStage persists a fresh classification result. EnteredStageTs is
// reset only when the stage actually changes, so DaysInStage survives
// re-classification into the same stage.
func (s *Store) UpdateFunnelStage(ctx context.Context, id int32, stage FunnelStage, score int) (*Lead, error) {
	current, err := s.GetLead(ctx, &FindLead{ID: &id})
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	now := time.Now().Unix()
	update := &UpdateLead{
		ID:               id,
		Stage:            &stage,
		Score:            &score,
		LastClassifiedTs: &now,
	}
	if current.Stage != stage {
		update.EnteredStageTs = &now
	}
	return s.UpdateLead(ctx, update)
}

// TouchLastContact records a successful outbound contact.
func (s *Store) TouchLastContact(ctx context.Context, id int32, ts int64) error {
	_, err := s.UpdateLead(ctx, &UpdateLead{ID: id, LastContactTs: &ts})
	return err
}

func leadCacheKey(id int32) string {
	return "lead:" + strconv.Itoa(int(id))
}
