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
// Reserved funds — CRUD via PostgREST
// ============================================================

func (c *Client) ListFunds(ctx context.Context, userID string) ([]domain.ReservedFund, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListFunds")
	defer span.End()

	path := fmt.Sprintf("reserved_funds?user_id=eq.%s&order=created_at.asc", userID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.ReservedFund{}, nil
	}

	var rows []domain.ReservedFund
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode reserved funds: %w", err)
	}
	return rows, nil
}

func (c *Client) GetFund(ctx context.Context, userID, fundID string) (*domain.ReservedFund, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetFund")
	defer span.End()

	path := fmt.Sprintf("reserved_funds?user_id=eq.%s&id=eq.%s&limit=1", userID, fundID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.ReservedFund
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode reserved fund: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "reserved fund", ID: fundID}
	}
	return &rows[0], nil
}

func (c *Client) CreateFund(ctx context.Context, fund *domain.ReservedFund) (*domain.ReservedFund, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateFund")
	defer span.End()

	if fund.ID == "" {
		fund.ID = uuid.NewString()
	}
	fund.Revision = 1

	payload, err := toPayload(fund)
	if err != nil {
		return nil, err
	}
	body, err := c.doPost(ctx, "reserved_funds", payload)
	if err != nil {
		return nil, err
	}

	var rows []domain.ReservedFund
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return fund, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateFund(ctx context.Context, fund *domain.ReservedFund, fromRevision int) (*domain.ReservedFund, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateFund")
	defer span.End()

	payload, err := toPayload(fund, "id", "user_id")
	if err != nil {
		return nil, err
	}
	body, err := c.updateWithRevision(ctx, "reserved_funds", fund.UserID, fund.ID, fromRevision, payload)
	if err != nil {
		return nil, err
	}
	if body == nil {
		if _, err := c.GetFund(ctx, fund.UserID, fund.ID); err != nil {
			return nil, err
		}
		return nil, &domain.ErrConflict{Message: "reserved fund modified concurrently"}
	}

	var rows []domain.ReservedFund
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("decode updated reserved fund: %w", err)
	}
	return &rows[0], nil
}

func (c *Client) DeleteFund(ctx context.Context, userID, fundID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteFund")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("reserved_funds?user_id=eq.%s&id=eq.%s", userID, fundID))
}
