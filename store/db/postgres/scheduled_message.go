package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zf-portal/leadflow/store"
)

func (d *DB) CreateScheduledMessage(ctx context.Context, create *store.ScheduledMessage) (*store.ScheduledMessage, error) {
	params := create.Params
	if params == nil {
		params = map[string]string{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	fields := []string{"uid", "lead_id", "channel", "content", "template_id", "params", "scheduled_ts", "status"}
	placeholderValues := []any{
		create.UID, create.LeadID, create.Channel, create.Content, create.TemplateID,
		string(paramsJSON), create.ScheduledTs, string(create.Status),
	}

	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}

	stmt := `INSERT INTO scheduled_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create scheduled message: %w", err)
	}

	return create, nil
}

func (d *DB) ListScheduledMessages(ctx context.Context, find *store.FindScheduledMessage) ([]*store.ScheduledMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "scheduled_message.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.LeadID; v != nil {
		where, args = append(where, "scheduled_message.lead_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "scheduled_message.status = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.ScheduledBefore; v != nil {
		where, args = append(where, "scheduled_message.scheduled_ts <= "+placeholder(len(args)+1)), append(args, *v)
	}

	// Ascending by scheduled_ts gives the drain pass its contiguous due
	// prefix ordering.
	query := `
		SELECT id, uid, lead_id, channel, content, template_id, params, scheduled_ts, status, sent_ts, created_ts
		FROM scheduled_message
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY scheduled_message.scheduled_ts ASC, scheduled_message.id ASC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ScheduledMessage, 0)
	for rows.Next() {
		var message store.ScheduledMessage
		var status, paramsJSON string
		if err := rows.Scan(
			&message.ID, &message.UID, &message.LeadID, &message.Channel,
			&message.Content, &message.TemplateID, &paramsJSON,
			&message.ScheduledTs, &status, &message.SentTs, &message.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled message: %w", err)
		}
		message.Status = store.MessageStatus(status)
		if err := json.Unmarshal([]byte(paramsJSON), &message.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params for message %d: %w", message.ID, err)
		}
		list = append(list, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateScheduledMessageStatus(ctx context.Context, update *store.UpdateScheduledMessageStatus) (bool, error) {
	stmt := `UPDATE scheduled_message SET status = $1, sent_ts = $2 WHERE id = $3 AND status = $4`
	result, err := d.db.ExecContext(ctx, stmt,
		string(update.Status), update.SentTs, update.ID, string(update.ExpectedStatus),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update scheduled message status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
