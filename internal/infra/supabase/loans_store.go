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
// Loans — CRUD via PostgREST
// ============================================================

func (c *Client) ListLoans(ctx context.Context, userID string) ([]domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLoans")
	defer span.End()

	path := fmt.Sprintf("loans?user_id=eq.%s&order=created_at.asc", userID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.Loan{}, nil
	}

	var rows []domain.Loan
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode loans: %w", err)
	}
	return rows, nil
}

func (c *Client) GetLoan(ctx context.Context, userID, loanID string) (*domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLoan")
	defer span.End()

	path := fmt.Sprintf("loans?user_id=eq.%s&id=eq.%s&limit=1", userID, loanID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Loan
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode loan: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "loan", ID: loanID}
	}
	return &rows[0], nil
}

func (c *Client) CreateLoan(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateLoan")
	defer span.End()

	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	loan.Revision = 1

	payload, err := toPayload(loan)
	if err != nil {
		return nil, err
	}
	body, err := c.doPost(ctx, "loans", payload)
	if err != nil {
		return nil, err
	}

	var rows []domain.Loan
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return loan, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateLoan(ctx context.Context, loan *domain.Loan, fromRevision int) (*domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateLoan")
	defer span.End()

	payload, err := toPayload(loan, "id", "user_id")
	if err != nil {
		return nil, err
	}
	body, err := c.updateWithRevision(ctx, "loans", loan.UserID, loan.ID, fromRevision, payload)
	if err != nil {
		return nil, err
	}
	if body == nil {
		if _, err := c.GetLoan(ctx, loan.UserID, loan.ID); err != nil {
			return nil, err
		}
		return nil, &domain.ErrConflict{Message: "loan modified concurrently"}
	}

	var rows []domain.Loan
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("decode updated loan: %w", err)
	}
	return &rows[0], nil
}

func (c *Client) DeleteLoan(ctx context.Context, userID, loanID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteLoan")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("loans?user_id=eq.%s&id=eq.%s", userID, loanID))
}
