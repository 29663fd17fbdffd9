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
// Credit cards (incl. gift cards) — CRUD via PostgREST
// ============================================================

func (c *Client) ListCards(ctx context.Context, userID string) ([]domain.CreditCard, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCards")
	defer span.End()

	path := fmt.Sprintf("credit_cards?user_id=eq.%s&order=created_at.asc", userID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.CreditCard{}, nil
	}

	var rows []domain.CreditCard
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode credit cards: %w", err)
	}
	return rows, nil
}

func (c *Client) GetCard(ctx context.Context, userID, cardID string) (*domain.CreditCard, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCard")
	defer span.End()

	path := fmt.Sprintf("credit_cards?user_id=eq.%s&id=eq.%s&limit=1", userID, cardID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.CreditCard
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode credit card: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "credit card", ID: cardID}
	}
	return &rows[0], nil
}

func (c *Client) CreateCard(ctx context.Context, card *domain.CreditCard) (*domain.CreditCard, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCard")
	defer span.End()

	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	card.Revision = 1

	payload, err := toPayload(card)
	if err != nil {
		return nil, err
	}
	body, err := c.doPost(ctx, "credit_cards", payload)
	if err != nil {
		return nil, err
	}

	var rows []domain.CreditCard
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return card, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateCard(ctx context.Context, card *domain.CreditCard, fromRevision int) (*domain.CreditCard, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCard")
	defer span.End()

	payload, err := toPayload(card, "id", "user_id")
	if err != nil {
		return nil, err
	}
	body, err := c.updateWithRevision(ctx, "credit_cards", card.UserID, card.ID, fromRevision, payload)
	if err != nil {
		return nil, err
	}
	if body == nil {
		if _, err := c.GetCard(ctx, card.UserID, card.ID); err != nil {
			return nil, err
		}
		return nil, &domain.ErrConflict{Message: "credit card modified concurrently"}
	}

	var rows []domain.CreditCard
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("decode updated credit card: %w", err)
	}
	return &rows[0], nil
}

func (c *Client) DeleteCard(ctx context.Context, userID, cardID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCard")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("credit_cards?user_id=eq.%s&id=eq.%s", userID, cardID))
}
