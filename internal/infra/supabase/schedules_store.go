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
// Income schedules — CRUD via PostgREST
// ============================================================

func (c *Client) ListSchedules(ctx context.Context, userID string) ([]domain.IncomeSchedule, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSchedules")
	defer span.End()

	path := fmt.Sprintf("income_schedules?user_id=eq.%s&order=next_date.asc", userID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.IncomeSchedule{}, nil
	}

	var rows []domain.IncomeSchedule
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode income schedules: %w", err)
	}
	return rows, nil
}

func (c *Client) GetSchedule(ctx context.Context, userID, scheduleID string) (*domain.IncomeSchedule, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSchedule")
	defer span.End()

	path := fmt.Sprintf("income_schedules?user_id=eq.%s&id=eq.%s&limit=1", userID, scheduleID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.IncomeSchedule
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode income schedule: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "income schedule", ID: scheduleID}
	}
	return &rows[0], nil
}

func (c *Client) CreateSchedule(ctx context.Context, sched *domain.IncomeSchedule) (*domain.IncomeSchedule, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateSchedule")
	defer span.End()

	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	sched.Revision = 1

	payload, err := toPayload(sched)
	if err != nil {
		return nil, err
	}
	body, err := c.doPost(ctx, "income_schedules", payload)
	if err != nil {
		return nil, err
	}

	var rows []domain.IncomeSchedule
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return sched, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateSchedule(ctx context.Context, sched *domain.IncomeSchedule, fromRevision int) (*domain.IncomeSchedule, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateSchedule")
	defer span.End()

	payload, err := toPayload(sched, "id", "user_id")
	if err != nil {
		return nil, err
	}
	body, err := c.updateWithRevision(ctx, "income_schedules", sched.UserID, sched.ID, fromRevision, payload)
	if err != nil {
		return nil, err
	}
	if body == nil {
		if _, err := c.GetSchedule(ctx, sched.UserID, sched.ID); err != nil {
			return nil, err
		}
		return nil, &domain.ErrConflict{Message: "income schedule modified concurrently"}
	}

	var rows []domain.IncomeSchedule
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("decode updated income schedule: %w", err)
	}
	return &rows[0], nil
}

func (c *Client) DeleteSchedule(ctx context.Context, userID, scheduleID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteSchedule")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("income_schedules?user_id=eq.%s&id=eq.%s", userID, scheduleID))
}
