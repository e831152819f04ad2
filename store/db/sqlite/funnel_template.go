package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/zf-portal/leadflow/store"
)

func (d *DB) CreateFunnelTemplate(ctx context.Context, create *store.FunnelTemplate) (*store.FunnelTemplate, error) {
	stmt := `INSERT INTO funnel_template (stage, position, content)
		VALUES (` + placeholders(3) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt,
		create.Stage.String(), create.Position, create.Content,
	).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create funnel template: %w", err)
	}

	return create, nil
}

func (d *DB) ListFunnelTemplates(ctx context.Context, find *store.FindFunnelTemplate) ([]*store.FunnelTemplate, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "funnel_template.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Stage; v != nil {
		where, args = append(where, "funnel_template.stage = "+placeholder(len(args)+1)), append(args, v.String())
	}

	query := `
		SELECT id, stage, position, content
		FROM funnel_template
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY funnel_template.stage ASC, funnel_template.position ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel templates: %w", err)
	}
	defer rows.Close()

	list := make([]*store.FunnelTemplate, 0)
	for rows.Next() {
		var tmpl store.FunnelTemplate
		var stage string
		if err := rows.Scan(&tmpl.ID, &stage, &tmpl.Position, &tmpl.Content); err != nil {
			return nil, fmt.Errorf("failed to scan funnel template: %w", err)
		}
		tmpl.Stage = store.ParseFunnelStage(stage)
		list = append(list, &tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
