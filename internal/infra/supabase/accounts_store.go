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
// Bank accounts — CRUD via PostgREST
// ============================================================

func (c *Client) ListAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAccounts")
	defer span.End()

	path := fmt.Sprintf("bank_accounts?user_id=eq.%s&order=created_at.asc", userID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.BankAccount{}, nil
	}

	var rows []domain.BankAccount
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode bank accounts: %w", err)
	}
	return rows, nil
}

func (c *Client) GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAccount")
	defer span.End()

	path := fmt.Sprintf("bank_accounts?user_id=eq.%s&id=eq.%s&limit=1", userID, accountID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.BankAccount
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode bank account: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "bank account", ID: accountID}
	}
	return &rows[0], nil
}

func (c *Client) GetPrimaryAccount(ctx context.Context, userID string) (*domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPrimaryAccount")
	defer span.End()

	path := fmt.Sprintf("bank_accounts?user_id=eq.%s&is_primary=eq.true&limit=1", userID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.BankAccount
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode bank account: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "primary bank account", ID: userID}
	}
	return &rows[0], nil
}

func (c *Client) CreateAccount(ctx context.Context, acc *domain.BankAccount) (*domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateAccount")
	defer span.End()

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	acc.Revision = 1

	payload, err := toPayload(acc)
	if err != nil {
		return nil, err
	}
	body, err := c.doPost(ctx, "bank_accounts", payload)
	if err != nil {
		return nil, err
	}

	var rows []domain.BankAccount
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return acc, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateAccount(ctx context.Context, acc *domain.BankAccount, fromRevision int) (*domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateAccount")
	defer span.End()

	payload, err := toPayload(acc, "id", "user_id")
	if err != nil {
		return nil, err
	}
	body, err := c.updateWithRevision(ctx, "bank_accounts", acc.UserID, acc.ID, fromRevision, payload)
	if err != nil {
		return nil, err
	}
	if body == nil {
		if _, err := c.GetAccount(ctx, acc.UserID, acc.ID); err != nil {
			return nil, err
		}
		return nil, &domain.ErrConflict{Message: "bank account modified concurrently"}
	}

	var rows []domain.BankAccount
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("decode updated bank account: %w", err)
	}

	c.logger.Info("supabase: account updated",
		zap.String("account_id", acc.ID),
		zap.Float64("balance", rows[0].Balance),
		zap.Int("revision", rows[0].Revision),
	)
	return &rows[0], nil
}

func (c *Client) DeleteAccount(ctx context.Context, userID, accountID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteAccount")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("bank_accounts?user_id=eq.%s&id=eq.%s", userID, accountID))
}
