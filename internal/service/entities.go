package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/infra/observability"
	"github.com/fintrack/fintrack-api/internal/ledger"
	"github.com/fintrack/fintrack-api/internal/money"
	"github.com/fintrack/fintrack-api/internal/port"
	"github.com/fintrack/fintrack-api/internal/schedule"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var entityTracer = otel.Tracer("service/entities")

// EntityService manages the monetary entities themselves: bank
// accounts, credit cards, loans, reserved funds, cash in hand, and the
// alert settings. Balance movement between entities belongs to
// LedgerService; this service owns creation, edits, and deletion, each
// of which leaves an activity record with a prior-state snapshot so it
// can be undone.
type EntityService struct {
	store         port.LedgerStore
	settingsCache port.Cache[*domain.AlertSettings]
	cashCache     port.Cache[*domain.CashPool]
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewEntityService creates the entity service.
func NewEntityService(
	store port.LedgerStore,
	settingsCache port.Cache[*domain.AlertSettings],
	cashCache port.Cache[*domain.CashPool],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *EntityService {
	return &EntityService{
		store:         store,
		settingsCache: settingsCache,
		cashCache:     cashCache,
		metrics:       metrics,
		logger:        logger,
	}
}

// ============================================================
// Bank accounts
// ============================================================

func (s *EntityService) ListAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.ListAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	return s.store.ListAccounts(ctx, userID)
}

func (s *EntityService) GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.GetAccount")
	defer span.End()

	return s.store.GetAccount(ctx, userID, accountID)
}

func (s *EntityService) CreateAccount(ctx context.Context, account *domain.BankAccount) (*domain.BankAccount, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.CreateAccount")
	defer span.End()

	if account.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if account.OverdraftLimit < 0 {
		return nil, &domain.ErrValidation{Field: "overdraft_limit", Message: "overdraft limit cannot be negative"}
	}
	account.Balance = money.Round2(account.Balance)

	if account.IsPrimary {
		if err := s.demotePrimary(ctx, account.UserID, ""); err != nil {
			return nil, err
		}
	}

	created, err := s.store.CreateAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	s.logEntityActivity(ctx, created.UserID, domain.ActionAdd, domain.KindBankAccount, created.ID, created.Name, nil)
	return created, nil
}

func (s *EntityService) UpdateAccount(ctx context.Context, account *domain.BankAccount) (*domain.BankAccount, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.UpdateAccount")
	defer span.End()

	prior, err := s.store.GetAccount(ctx, account.UserID, account.ID)
	if err != nil {
		return nil, err
	}
	if account.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	account.Balance = money.Round2(account.Balance)

	if account.IsPrimary && !prior.IsPrimary {
		if err := s.demotePrimary(ctx, account.UserID, account.ID); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.UpdateAccount(ctx, account, prior.Revision)
	if err != nil {
		return nil, err
	}
	s.logEntityActivity(ctx, updated.UserID, domain.ActionEdit, domain.KindBankAccount, updated.ID, updated.Name, prior)
	return updated, nil
}

func (s *EntityService) DeleteAccount(ctx context.Context, userID, accountID string) error {
	ctx, span := entityTracer.Start(ctx, "EntityService.DeleteAccount")
	defer span.End()

	prior, err := s.store.GetAccount(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, userID, accountID); err != nil {
		return err
	}
	s.logEntityActivity(ctx, userID, domain.ActionDelete, domain.KindBankAccount, accountID, prior.Name, prior)
	return nil
}

// demotePrimary clears the primary flag on whichever account currently
// holds it, so at most one primary account exists per user.
func (s *EntityService) demotePrimary(ctx context.Context, userID, keepID string) error {
	current, err := s.store.GetPrimaryAccount(ctx, userID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	if current == nil || current.ID == keepID {
		return nil
	}
	current.IsPrimary = false
	if _, err := s.store.UpdateAccount(ctx, current, current.Revision); err != nil {
		return fmt.Errorf("demote primary account: %w", err)
	}
	return nil
}

// ============================================================
// Credit cards
// ============================================================

func (s *EntityService) ListCards(ctx context.Context, userID string) ([]domain.CreditCard, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.ListCards")
	defer span.End()

	return s.store.ListCards(ctx, userID)
}

func (s *EntityService) GetCard(ctx context.Context, userID, cardID string) (*domain.CreditCard, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.GetCard")
	defer span.End()

	return s.store.GetCard(ctx, userID, cardID)
}

func (s *EntityService) CreateCard(ctx context.Context, card *domain.CreditCard) (*domain.CreditCard, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.CreateCard")
	defer span.End()

	if err := validateCard(card); err != nil {
		return nil, err
	}
	card.Balance = money.Round2(card.Balance)

	created, err := s.store.CreateCard(ctx, card)
	if err != nil {
		return nil, err
	}
	s.logEntityActivity(ctx, created.UserID, domain.ActionAdd, domain.KindCreditCard, created.ID, created.Name, nil)
	return created, nil
}

func (s *EntityService) UpdateCard(ctx context.Context, card *domain.CreditCard) (*domain.CreditCard, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.UpdateCard")
	defer span.End()

	prior, err := s.store.GetCard(ctx, card.UserID, card.ID)
	if err != nil {
		return nil, err
	}
	if err := validateCard(card); err != nil {
		return nil, err
	}
	card.Balance = money.Round2(card.Balance)

	updated, err := s.store.UpdateCard(ctx, card, prior.Revision)
	if err != nil {
		return nil, err
	}
	s.logEntityActivity(ctx, updated.UserID, domain.ActionEdit, domain.KindCreditCard, updated.ID, updated.Name, prior)
	return updated, nil
}

func (s *EntityService) DeleteCard(ctx context.Context, userID, cardID string) error {
	ctx, span := entityTracer.Start(ctx, "EntityService.DeleteCard")
	defer span.End()

	prior, err := s.store.GetCard(ctx, userID, cardID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCard(ctx, userID, cardID); err != nil {
		return err
	}
	s.logEntityActivity(ctx, userID, domain.ActionDelete, domain.KindCreditCard, cardID, prior.Name, prior)
	return nil
}

func validateCard(card *domain.CreditCard) error {
	if card.Name == "" {
		return &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if card.Balance < 0 {
		return &domain.ErrValidation{Field: "balance", Message: "balance cannot be negative"}
	}
	if card.DueDate != "" {
		if err := validDate(card.DueDate); err != nil {
			return &domain.ErrValidation{Field: "due_date", Message: "due date must be YYYY-MM-DD"}
		}
	}
	if card.Frequency != "" && !schedule.ValidFrequency(card.Frequency) {
		return &domain.ErrValidation{Field: "frequency", Message: fmt.Sprintf("unknown frequency '%s'", card.Frequency)}
	}
	return nil
}

// ============================================================
// Loans
// ============================================================

func (s *EntityService) ListLoans(ctx context.Context, userID string) ([]domain.Loan, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.ListLoans")
	defer span.End()

	return s.store.ListLoans(ctx, userID)
}

func (s *EntityService) GetLoan(ctx context.Context, userID, loanID string) (*domain.Loan, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.GetLoan")
	defer span.End()

	return s.store.GetLoan(ctx, userID, loanID)
}

func (s *EntityService) CreateLoan(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.CreateLoan")
	defer span.End()

	if err := validateLoan(loan); err != nil {
		return nil, err
	}
	loan.Balance = money.Round2(loan.Balance)
	loan.IsActive = loan.Balance > 0

	created, err := s.store.CreateLoan(ctx, loan)
	if err != nil {
		return nil, err
	}
	s.logEntityActivity(ctx, created.UserID, domain.ActionAdd, domain.KindLoan, created.ID, created.Name, nil)
	return created, nil
}

func (s *EntityService) UpdateLoan(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.UpdateLoan")
	defer span.End()

	prior, err := s.store.GetLoan(ctx, loan.UserID, loan.ID)
	if err != nil {
		return nil, err
	}
	if err := validateLoan(loan); err != nil {
		return nil, err
	}
	loan.Balance = money.Round2(loan.Balance)

	updated, err := s.store.UpdateLoan(ctx, loan, prior.Revision)
	if err != nil {
		return nil, err
	}
	s.logEntityActivity(ctx, updated.UserID, domain.ActionEdit, domain.KindLoan, updated.ID, updated.Name, prior)
	return updated, nil
}

func (s *EntityService) DeleteLoan(ctx context.Context, userID, loanID string) error {
	ctx, span := entityTracer.Start(ctx, "EntityService.DeleteLoan")
	defer span.End()

	prior, err := s.store.GetLoan(ctx, userID, loanID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLoan(ctx, userID, loanID); err != nil {
		return err
	}
	s.logEntityActivity(ctx, userID, domain.ActionDelete, domain.KindLoan, loanID, prior.Name, prior)
	return nil
}

func validateLoan(loan *domain.Loan) error {
	if loan.Name == "" {
		return &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if loan.Balance < 0 {
		return &domain.ErrValidation{Field: "balance", Message: "balance cannot be negative"}
	}
	if loan.Frequency != "" && !schedule.ValidFrequency(loan.Frequency) {
		return &domain.ErrValidation{Field: "frequency", Message: fmt.Sprintf("unknown frequency '%s'", loan.Frequency)}
	}
	switch loan.RecurringDuration {
	case "", domain.DurationIndefinite:
	case domain.DurationUntilDate:
		if loan.RecurringEndDate == "" {
			return &domain.ErrValidation{Field: "recurring_end_date", Message: "end date is required for until_date loans"}
		}
	case domain.DurationOccurrences:
		if loan.MaxOccurrences <= 0 {
			return &domain.ErrValidation{Field: "max_occurrences", Message: "max occurrences must be positive"}
		}
	default:
		return &domain.ErrValidation{Field: "recurring_duration_type", Message: fmt.Sprintf("unknown duration type '%s'", loan.RecurringDuration)}
	}
	return nil
}

// ============================================================
// Reserved funds
// ============================================================

func (s *EntityService) ListFunds(ctx context.Context, userID string) ([]domain.ReservedFund, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.ListFunds")
	defer span.End()

	return s.store.ListFunds(ctx, userID)
}

func (s *EntityService) GetFund(ctx context.Context, userID, fundID string) (*domain.ReservedFund, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.GetFund")
	defer span.End()

	return s.store.GetFund(ctx, userID, fundID)
}

func (s *EntityService) CreateFund(ctx context.Context, fund *domain.ReservedFund) (*domain.ReservedFund, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.CreateFund")
	defer span.End()

	if err := validateFund(fund); err != nil {
		return nil, err
	}
	fund.Amount = money.Round2(fund.Amount)
	if fund.OriginalAmount == 0 {
		fund.OriginalAmount = fund.Amount
	}

	created, err := s.store.CreateFund(ctx, fund)
	if err != nil {
		return nil, err
	}
	s.logEntityActivity(ctx, created.UserID, domain.ActionAdd, domain.KindReservedFund, created.ID, created.Name, nil)
	return created, nil
}

func (s *EntityService) UpdateFund(ctx context.Context, fund *domain.ReservedFund) (*domain.ReservedFund, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.UpdateFund")
	defer span.End()

	prior, err := s.store.GetFund(ctx, fund.UserID, fund.ID)
	if err != nil {
		return nil, err
	}
	if err := validateFund(fund); err != nil {
		return nil, err
	}
	fund.Amount = money.Round2(fund.Amount)

	updated, err := s.store.UpdateFund(ctx, fund, prior.Revision)
	if err != nil {
		return nil, err
	}
	s.logEntityActivity(ctx, updated.UserID, domain.ActionEdit, domain.KindReservedFund, updated.ID, updated.Name, prior)
	return updated, nil
}

func (s *EntityService) DeleteFund(ctx context.Context, userID, fundID string) error {
	ctx, span := entityTracer.Start(ctx, "EntityService.DeleteFund")
	defer span.End()

	prior, err := s.store.GetFund(ctx, userID, fundID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFund(ctx, userID, fundID); err != nil {
		return err
	}
	s.logEntityActivity(ctx, userID, domain.ActionDelete, domain.KindReservedFund, fundID, prior.Name, prior)
	return nil
}

func validateFund(fund *domain.ReservedFund) error {
	if fund.Name == "" {
		return &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if fund.Amount < 0 {
		return &domain.ErrValidation{Field: "amount", Message: "amount cannot be negative"}
	}
	if fund.IsLumpsum {
		if len(fund.LinkedItems) == 0 {
			return &domain.ErrValidation{Field: "linked_items", Message: "a lumpsum fund needs at least one linked item"}
		}
		if fund.LinkedTo != nil {
			return &domain.ErrValidation{Field: "linked_to", Message: "a lumpsum fund cannot also have a direct link"}
		}
		for _, item := range fund.LinkedItems {
			if err := validateFundLink(item); err != nil {
				return err
			}
		}
	} else if fund.LinkedTo != nil {
		if err := validateFundLink(*fund.LinkedTo); err != nil {
			return err
		}
	}
	if fund.Recurring && fund.Frequency != "" && !schedule.ValidFrequency(fund.Frequency) {
		return &domain.ErrValidation{Field: "frequency", Message: fmt.Sprintf("unknown frequency '%s'", fund.Frequency)}
	}
	return nil
}

func validateFundLink(link domain.FundLink) error {
	switch link.Kind {
	case domain.KindCreditCard, domain.KindLoan:
	default:
		return &domain.ErrValidation{Field: "linked_to.kind", Message: fmt.Sprintf("a fund can only link to a credit card or loan, not '%s'", link.Kind)}
	}
	if link.ID == "" {
		return &domain.ErrValidation{Field: "linked_to.id", Message: "linked entity id is required"}
	}
	return nil
}

// ============================================================
// Cash in hand
// ============================================================

const cashCacheKey = "cash:%s"

func (s *EntityService) GetCash(ctx context.Context, userID string) (*domain.CashPool, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.GetCash")
	defer span.End()

	key := fmt.Sprintf(cashCacheKey, userID)
	if cached, ok := s.cashCache.Get(key); ok {
		s.metrics.IncrCacheHit("cash")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("cash")

	pool, err := s.store.GetCashPool(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cashCache.Set(key, pool)
	return pool, nil
}

// AdjustCash applies a manual correction to the cash pool. The delta
// may be negative but may not take the pool below zero.
func (s *EntityService) AdjustCash(ctx context.Context, userID string, req *domain.CashAdjustRequest) (*domain.CashPool, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.AdjustCash")
	defer span.End()

	if money.Negligible(req.Delta) {
		return nil, &domain.ErrValidation{Field: "delta", Message: "delta must be non-zero"}
	}

	var updated *domain.CashPool
	for attempt := 0; ; attempt++ {
		pool, err := s.store.GetCashPool(ctx, userID)
		if err != nil {
			return nil, err
		}
		before := pool.Balance
		newBalance, err := ledger.ApplyCashDelta(pool, req.Delta)
		if err != nil {
			return nil, err
		}
		pool.Balance = newBalance

		updated, err = s.store.UpdateCashPool(ctx, pool, pool.Revision)
		if err == nil {
			s.cashCache.Delete(fmt.Sprintf(cashCacheKey, userID))
			s.logEntityActivity(ctx, userID, domain.ActionEdit, domain.KindCashInHand, pool.ID, "Cash", &domain.CashPool{
				ID: pool.ID, UserID: userID, Balance: before, Revision: pool.Revision,
			})
			break
		}
		if !isConflict(err) || attempt >= maxConflictRetries-1 {
			return nil, err
		}
		s.metrics.IncrConflictRetry(domain.KindCashInHand)
	}

	s.logger.Info("cash adjusted",
		zap.String("user_id", userID),
		zap.Float64("delta", req.Delta),
		zap.Float64("balance", updated.Balance),
	)
	return updated, nil
}

// AvailableCash is the derived liquid total: every bank account balance
// plus cash in hand, recomputed from stored balances on each read.
func (s *EntityService) AvailableCash(ctx context.Context, userID string) (float64, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.AvailableCash")
	defer span.End()

	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return 0, err
	}
	pool, err := s.GetCash(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := pool.Balance
	for _, a := range accounts {
		total = money.Add(total, a.Balance)
	}
	return total, nil
}

// ============================================================
// Alert settings
// ============================================================

const settingsCacheKey = "alerts:%s"

func (s *EntityService) GetAlertSettings(ctx context.Context, userID string) (*domain.AlertSettings, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.GetAlertSettings")
	defer span.End()

	key := fmt.Sprintf(settingsCacheKey, userID)
	if cached, ok := s.settingsCache.Get(key); ok {
		s.metrics.IncrCacheHit("alert_settings")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("alert_settings")

	settings, err := s.store.GetAlertSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.settingsCache.Set(key, settings)
	return settings, nil
}

func (s *EntityService) UpdateAlertSettings(ctx context.Context, settings *domain.AlertSettings) (*domain.AlertSettings, error) {
	ctx, span := entityTracer.Start(ctx, "EntityService.UpdateAlertSettings")
	defer span.End()

	if settings.UrgentWindow < 0 || settings.UpcomingWindow < 0 {
		return nil, &domain.ErrValidation{Field: "windows", Message: "alert windows cannot be negative"}
	}
	if settings.UrgentWindow > settings.UpcomingWindow {
		return nil, &domain.ErrValidation{Field: "urgent_window_days", Message: "urgent window cannot exceed the upcoming window"}
	}

	current, err := s.store.GetAlertSettings(ctx, settings.UserID)
	if err != nil {
		return nil, err
	}
	current.UrgentWindow = settings.UrgentWindow
	current.UpcomingWindow = settings.UpcomingWindow

	updated, err := s.store.UpdateAlertSettings(ctx, current, current.Revision)
	if err != nil {
		return nil, err
	}
	s.settingsCache.Delete(fmt.Sprintf(settingsCacheKey, settings.UserID))
	return updated, nil
}

// ============================================================
// Activity logging
// ============================================================

// logEntityActivity records an add/edit/delete with a snapshot of the
// prior state. Logging failures never fail the entity operation.
func (s *EntityService) logEntityActivity(ctx context.Context, userID string, action domain.ActionType, kind domain.EntityKind, entityID, entityName string, prior any) {
	record := &domain.ActivityRecord{
		UserID:      userID,
		ActionType:  action,
		EntityType:  string(kind),
		EntityID:    entityID,
		EntityName:  entityName,
		Description: fmt.Sprintf("%s %s '%s'", action, kind, entityName),
	}
	if prior != nil {
		if snap, err := entitySnapshot(prior); err == nil {
			record.Snapshot.PriorEntity = snap
		} else {
			s.logger.Warn("failed to snapshot prior entity state",
				zap.String("entity_id", entityID),
				zap.Error(err),
			)
		}
	}
	if _, err := s.store.AppendActivity(ctx, record); err != nil {
		s.logger.Error("failed to append activity record",
			zap.String("user_id", userID),
			zap.String("action", string(action)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

// entitySnapshot flattens an entity into the generic snapshot shape
// stored in the activity log.
func entitySnapshot(entity any) (map[string]any, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	var snap map[string]any
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}
