// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/fintrack/fintrack-api/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// LedgerStore defines all persistence operations for the finance
// tracker. Implemented by the Supabase adapter (or any other
// persistence layer). Every call is scoped to a user.
//
// Update* methods take the revision the caller read and write
// conditionally: a stale revision yields *domain.ErrConflict and no
// write, so callers reload and retry.
//
// Create* methods have put semantics: a record with an existing id
// overwrites that row, last value wins. Backup import replays records
// through Create* and depends on this.
type LedgerStore interface {
	// Bank accounts
	ListAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error)
	GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error)
	GetPrimaryAccount(ctx context.Context, userID string) (*domain.BankAccount, error)
	CreateAccount(ctx context.Context, acc *domain.BankAccount) (*domain.BankAccount, error)
	UpdateAccount(ctx context.Context, acc *domain.BankAccount, fromRevision int) (*domain.BankAccount, error)
	DeleteAccount(ctx context.Context, userID, accountID string) error

	// Credit cards (and gift cards)
	ListCards(ctx context.Context, userID string) ([]domain.CreditCard, error)
	GetCard(ctx context.Context, userID, cardID string) (*domain.CreditCard, error)
	CreateCard(ctx context.Context, card *domain.CreditCard) (*domain.CreditCard, error)
	UpdateCard(ctx context.Context, card *domain.CreditCard, fromRevision int) (*domain.CreditCard, error)
	DeleteCard(ctx context.Context, userID, cardID string) error

	// Loans
	ListLoans(ctx context.Context, userID string) ([]domain.Loan, error)
	GetLoan(ctx context.Context, userID, loanID string) (*domain.Loan, error)
	CreateLoan(ctx context.Context, loan *domain.Loan) (*domain.Loan, error)
	UpdateLoan(ctx context.Context, loan *domain.Loan, fromRevision int) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, userID, loanID string) error

	// Reserved funds
	ListFunds(ctx context.Context, userID string) ([]domain.ReservedFund, error)
	GetFund(ctx context.Context, userID, fundID string) (*domain.ReservedFund, error)
	CreateFund(ctx context.Context, fund *domain.ReservedFund) (*domain.ReservedFund, error)
	UpdateFund(ctx context.Context, fund *domain.ReservedFund, fromRevision int) (*domain.ReservedFund, error)
	DeleteFund(ctx context.Context, userID, fundID string) error

	// Cash pool (one row per user, created on first access)
	GetCashPool(ctx context.Context, userID string) (*domain.CashPool, error)
	UpdateCashPool(ctx context.Context, pool *domain.CashPool, fromRevision int) (*domain.CashPool, error)

	// Transactions
	ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, userID, txID string) (*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
	MarkTransactionUndone(ctx context.Context, userID, txID string) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, txID string) error

	// Activity log
	ListActivity(ctx context.Context, userID string, page, pageSize int) ([]domain.ActivityRecord, error)
	GetActivity(ctx context.Context, userID, activityID string) (*domain.ActivityRecord, error)
	AppendActivity(ctx context.Context, rec *domain.ActivityRecord) (*domain.ActivityRecord, error)
	GetActivityByTransaction(ctx context.Context, userID, txID string) (*domain.ActivityRecord, error)
	DeleteActivity(ctx context.Context, userID, activityID string) error

	// Income schedules
	ListSchedules(ctx context.Context, userID string) ([]domain.IncomeSchedule, error)
	GetSchedule(ctx context.Context, userID, scheduleID string) (*domain.IncomeSchedule, error)
	CreateSchedule(ctx context.Context, sched *domain.IncomeSchedule) (*domain.IncomeSchedule, error)
	UpdateSchedule(ctx context.Context, sched *domain.IncomeSchedule, fromRevision int) (*domain.IncomeSchedule, error)
	DeleteSchedule(ctx context.Context, userID, scheduleID string) error

	// Alert settings (one row per user, defaults when absent)
	GetAlertSettings(ctx context.Context, userID string) (*domain.AlertSettings, error)
	UpdateAlertSettings(ctx context.Context, settings *domain.AlertSettings, fromRevision int) (*domain.AlertSettings, error)
}
