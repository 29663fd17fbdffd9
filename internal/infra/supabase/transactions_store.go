package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fintrack/fintrack-api/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================
// Transactions — the ledger. Rows are immutable except for the
// status flip on reversal.
// ============================================================

func (c *Client) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()

	var rows []domain.Transaction
	err := c.withResilience(ctx, func() error {
		offset := (page - 1) * pageSize
		path := fmt.Sprintf("transactions?user_id=eq.%s&order=created_at.desc&limit=%d&offset=%d",
			userID, pageSize, offset)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows = []domain.Transaction{}
		if body == nil || string(body) == "[]" {
			return nil
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return rows, nil
}

func (c *Client) GetTransaction(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTransaction")
	defer span.End()

	path := fmt.Sprintf("transactions?user_id=eq.%s&id=eq.%s&limit=1", userID, txID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Transaction
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: txID}
	}
	return &rows[0], nil
}

func (c *Client) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTransaction")
	defer span.End()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = domain.TxActive
	}

	payload, err := toPayload(tx)
	if err != nil {
		return nil, err
	}
	body, err := c.doPost(ctx, "transactions", payload)
	if err != nil {
		return nil, err
	}

	c.logger.Info("supabase: transaction created",
		zap.String("id", tx.ID),
		zap.String("type", string(tx.Type)),
		zap.Float64("amount", tx.Amount),
	)

	var rows []domain.Transaction
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return tx, nil
	}
	return &rows[0], nil
}

// MarkTransactionUndone flips status to undone. The status filter makes
// the flip first-writer-wins: a second undo matches nothing.
func (c *Client) MarkTransactionUndone(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.MarkTransactionUndone")
	defer span.End()

	path := fmt.Sprintf("transactions?user_id=eq.%s&id=eq.%s&status=eq.%s", userID, txID, domain.TxActive)
	body, err := c.doPatchReturning(ctx, path, map[string]any{
		"status":    domain.TxUndone,
		"undone_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || string(body) == "[]" {
		if _, err := c.GetTransaction(ctx, userID, txID); err != nil {
			return nil, err
		}
		return nil, &domain.ErrAlreadyUndone{TransactionID: txID}
	}

	var rows []domain.Transaction
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("decode undone transaction: %w", err)
	}
	return &rows[0], nil
}

func (c *Client) DeleteTransaction(ctx context.Context, userID, txID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTransaction")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("transactions?user_id=eq.%s&id=eq.%s", userID, txID))
}
