package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/zf-portal/leadflow/store"
)

func (d *DB) CreateInteraction(ctx context.Context, create *store.Interaction) (*store.Interaction, error) {
	fields := []string{"lead_id", "type", "direction", "content"}
	placeholderValues := []any{
		create.LeadID, string(create.Type), string(create.Direction), create.Content,
	}

	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}

	stmt := `INSERT INTO interaction (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create interaction: %w", err)
	}

	return create, nil
}

func (d *DB) ListInteractions(ctx context.Context, find *store.FindInteraction) ([]*store.Interaction, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.LeadID; v != nil {
		where, args = append(where, "interaction.lead_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Direction; v != nil {
		where, args = append(where, "interaction.direction = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.CreatedAfter; v != nil {
		where, args = append(where, "interaction.created_ts > "+placeholder(len(args)+1)), append(args, *v)
	}

	// Ascending so callers read history most-recent-last.
	query := `
		SELECT id, lead_id, type, direction, content, created_ts
		FROM interaction
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY interaction.created_ts ASC, interaction.id ASC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Interaction, 0)
	for rows.Next() {
		var interaction store.Interaction
		var typ, direction string
		if err := rows.Scan(
			&interaction.ID, &interaction.LeadID, &typ, &direction,
			&interaction.Content, &interaction.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interaction.Type = store.InteractionType(typ)
		interaction.Direction = store.Direction(direction)
		list = append(list, &interaction)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
