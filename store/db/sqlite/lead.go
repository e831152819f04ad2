package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zf-portal/leadflow/store"
)

func (d *DB) CreateLead(ctx context.Context, create *store.Lead) (*store.Lead, error) {
	fields := []string{
		"uid", "name", "email", "phone", "channel_identity",
		"company", "title", "industry", "website", "profile_url",
		"stage", "score",
	}
	placeholderValues := []any{
		create.UID, create.Name, create.Email, create.Phone, create.ChannelIdentity,
		create.Company, create.Title, create.Industry, create.Website, create.ProfileURL,
		create.Stage.String(), create.Score,
	}

	if create.EnteredStageTs != 0 {
		fields = append(fields, "entered_stage_ts")
		placeholderValues = append(placeholderValues, create.EnteredStageTs)
	}
	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}

	stmt := `INSERT INTO lead (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, entered_stage_ts, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.EnteredStageTs,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	return create, nil
}

func (d *DB) ListLeads(ctx context.Context, find *store.FindLead) ([]*store.Lead, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "lead.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "lead.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Stage; v != nil {
		where, args = append(where, "lead.stage = "+placeholder(len(args)+1)), append(args, v.String())
	}
	if v := find.ClassifiedBefore; v != nil {
		where, args = append(where, "(lead.last_classified_ts IS NULL OR lead.last_classified_ts < "+placeholder(len(args)+1)+")"), append(args, *v)
	}

	query := `
		SELECT
			id, uid, name, email, phone, channel_identity,
			company, title, industry, website, profile_url,
			stage, score, entered_stage_ts, last_classified_ts, last_contact_ts,
			created_ts, updated_ts
		FROM lead
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY lead.id ASC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
		if find.Offset != nil {
			query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Lead, 0)
	for rows.Next() {
		var lead store.Lead
		var stage string
		if err := rows.Scan(
			&lead.ID, &lead.UID, &lead.Name, &lead.Email, &lead.Phone, &lead.ChannelIdentity,
			&lead.Company, &lead.Title, &lead.Industry, &lead.Website, &lead.ProfileURL,
			&stage, &lead.Score, &lead.EnteredStageTs, &lead.LastClassifiedTs, &lead.LastContactTs,
			&lead.CreatedTs, &lead.UpdatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		lead.Stage = store.ParseFunnelStage(stage)
		list = append(list, &lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateLead(ctx context.Context, update *store.UpdateLead) (*store.Lead, error) {
	set, args := []string{}, []any{}

	if v := update.Name; v != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Email; v != nil {
		set, args = append(set, "email = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Phone; v != nil {
		set, args = append(set, "phone = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.ChannelIdentity; v != nil {
		set, args = append(set, "channel_identity = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Company; v != nil {
		set, args = append(set, "company = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Industry; v != nil {
		set, args = append(set, "industry = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Website; v != nil {
		set, args = append(set, "website = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.ProfileURL; v != nil {
		set, args = append(set, "profile_url = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Stage; v != nil {
		set, args = append(set, "stage = "+placeholder(len(args)+1)), append(args, v.String())
	}
	if v := update.Score; v != nil {
		set, args = append(set, "score = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.EnteredStageTs; v != nil {
		set, args = append(set, "entered_stage_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LastClassifiedTs; v != nil {
		set, args = append(set, "last_classified_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LastContactTs; v != nil {
		set, args = append(set, "last_contact_ts = "+placeholder(len(args)+1)), append(args, *v)
	}

	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, time.Now().Unix())
	args = append(args, update.ID)

	stmt := `UPDATE lead SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	list, err := d.ListLeads(ctx, &store.FindLead{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("lead %d not found after update", update.ID)
	}
	return list[0], nil
}
