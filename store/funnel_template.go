package store

import (
	"context"
	"sort"
)

// FunnelTemplate is a reusable message body tied to a funnel stage. Position
// orders the templates within a stage: 0 is the opener, 1 the follow-up.
type FunnelTemplate struct {
	ID       int32
	Stage    FunnelStage
	Position int
	Content  string
}

// FindFunnelTemplate is the find condition for funnel templates.
type FindFunnelTemplate struct {
	ID    *int32
	Stage *FunnelStage
}

func (s *Store) GetFunnelTemplate(ctx context.Context, id int32) (*FunnelTemplate, error) {
	list, err := s.driver.ListFunnelTemplates(ctx, &FindFunnelTemplate{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListFunnelTemplatesByStage returns the stage's templates ordered by
// position ascending. Results are cached; templates change rarely.
func (s *Store) ListFunnelTemplatesByStage(ctx context.Context, stage FunnelStage) ([]*FunnelTemplate, error) {
	cacheKey := "template:" + stage.String()
	if cached, ok := s.templateCache.Get(cacheKey); ok {
		if list, ok := cached.([]*FunnelTemplate); ok {
			return list, nil
		}
	}

	list, err := s.driver.ListFunnelTemplates(ctx, &FindFunnelTemplate{Stage: &stage})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	s.templateCache.Set(cacheKey, list)
	return list, nil
}
