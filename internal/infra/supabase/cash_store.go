package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fintrack/fintrack-api/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================
// Cash pool — one row per user, created lazily
// ============================================================

// GetCashPool returns the user's cash-in-hand row, creating a zero
// balance row on first access.
func (c *Client) GetCashPool(ctx context.Context, userID string) (*domain.CashPool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCashPool")
	defer span.End()

	path := fmt.Sprintf("cash_pools?user_id=eq.%s&limit=1", userID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.CashPool
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode cash pool: %w", err)
		}
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}

	pool := &domain.CashPool{ID: uuid.NewString(), UserID: userID, Balance: 0, Revision: 1}
	payload, err := toPayload(pool)
	if err != nil {
		return nil, err
	}
	created, err := c.doPost(ctx, "cash_pools", payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("supabase: cash pool created", zap.String("user_id", userID))

	if err := json.Unmarshal(created, &rows); err != nil || len(rows) == 0 {
		return pool, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateCashPool(ctx context.Context, pool *domain.CashPool, fromRevision int) (*domain.CashPool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCashPool")
	defer span.End()

	payload, err := toPayload(pool, "id", "user_id")
	if err != nil {
		return nil, err
	}
	body, err := c.updateWithRevision(ctx, "cash_pools", pool.UserID, pool.ID, fromRevision, payload)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, &domain.ErrConflict{Message: "cash pool modified concurrently"}
	}

	var rows []domain.CashPool
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("decode updated cash pool: %w", err)
	}
	return &rows[0], nil
}
