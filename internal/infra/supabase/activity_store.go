package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fintrack/fintrack-api/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// Activity log — append-only audit/undo records
// ============================================================

func (c *Client) ListActivity(ctx context.Context, userID string, page, pageSize int) ([]domain.ActivityRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActivity")
	defer span.End()

	var rows []domain.ActivityRecord
	err := c.withResilience(ctx, func() error {
		offset := (page - 1) * pageSize
		path := fmt.Sprintf("activity_log?user_id=eq.%s&order=created_at.desc&limit=%d&offset=%d",
			userID, pageSize, offset)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows = []domain.ActivityRecord{}
		if body == nil || string(body) == "[]" {
			return nil
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/activity", Err: err}
	}
	return rows, nil
}

func (c *Client) AppendActivity(ctx context.Context, rec *domain.ActivityRecord) (*domain.ActivityRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AppendActivity")
	defer span.End()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	payload, err := toPayload(rec)
	if err != nil {
		return nil, err
	}
	body, err := c.doPost(ctx, "activity_log", payload)
	if err != nil {
		return nil, err
	}

	var rows []domain.ActivityRecord
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return rec, nil
	}
	return &rows[0], nil
}

func (c *Client) GetActivity(ctx context.Context, userID, activityID string) (*domain.ActivityRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetActivity")
	defer span.End()

	path := fmt.Sprintf("activity_log?user_id=eq.%s&id=eq.%s&limit=1", userID, activityID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.ActivityRecord
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode activity record: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "activity record", ID: activityID}
	}
	return &rows[0], nil
}

// GetActivityByTransaction finds the audit record whose snapshot links
// the given transaction. Snapshot is a jsonb column, so the filter uses
// the PostgREST arrow operator.
func (c *Client) GetActivityByTransaction(ctx context.Context, userID, txID string) (*domain.ActivityRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetActivityByTransaction")
	defer span.End()

	path := fmt.Sprintf("activity_log?user_id=eq.%s&snapshot->>transaction_id=eq.%s&limit=1", userID, txID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.ActivityRecord
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode activity record: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "activity record", ID: txID}
	}
	return &rows[0], nil
}

func (c *Client) DeleteActivity(ctx context.Context, userID, activityID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteActivity")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("activity_log?user_id=eq.%s&id=eq.%s", userID, activityID))
}
