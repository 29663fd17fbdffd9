// Package service provides the business logic layer (use cases).
// LedgerService is the posting engine: it turns expense/income/payment
// intents into balance mutations, transaction records, and activity log
// entries.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

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

var ledgerTracer = otel.Tracer("service/ledger")

// maxConflictRetries bounds the reload-and-retry loop on revision
// conflicts before giving up with ErrConflict.
const maxConflictRetries = 3

// LedgerService orchestrates posting and reversal via the record store.
type LedgerService struct {
	store   port.LedgerStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{store: store, metrics: metrics, logger: logger, now: time.Now}
}

func isConflict(err error) bool {
	var c *domain.ErrConflict
	return errors.As(err, &c)
}

func validDate(date string) error {
	if _, err := time.Parse(schedule.DateLayout, date); err != nil {
		return &domain.ErrValidation{Field: "date", Message: "must be YYYY-MM-DD"}
	}
	return nil
}

// ============================================================
// Balance mutation with optimistic-concurrency retry
// ============================================================

// mutateAccount applies delta to a bank account, retrying on revision
// conflicts with a fresh read each attempt.
func (s *LedgerService) mutateAccount(ctx context.Context, userID, accountID string, delta float64) (domain.BalanceChange, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		acc, err := s.store.GetAccount(ctx, userID, accountID)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		before := acc.Balance
		nb, err := ledger.ApplyAccountDelta(acc, delta)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		acc.Balance = nb
		updated, err := s.store.UpdateAccount(ctx, acc, acc.Revision)
		if err == nil {
			return domain.BalanceChange{
				Kind: domain.KindBankAccount, EntityID: acc.ID, Before: before, After: updated.Balance,
			}, acc.Name, nil
		}
		if !isConflict(err) {
			return domain.BalanceChange{}, "", err
		}
		s.metrics.IncrConflictRetry(domain.KindBankAccount)
		lastErr = err
	}
	return domain.BalanceChange{}, "", lastErr
}

// mutateCash applies delta to the user's cash pool.
func (s *LedgerService) mutateCash(ctx context.Context, userID string, delta float64) (domain.BalanceChange, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		pool, err := s.store.GetCashPool(ctx, userID)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		before := pool.Balance
		nb, err := ledger.ApplyCashDelta(pool, delta)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		pool.Balance = nb
		updated, err := s.store.UpdateCashPool(ctx, pool, pool.Revision)
		if err == nil {
			return domain.BalanceChange{
				Kind: domain.KindCashInHand, EntityID: pool.ID, Before: before, After: updated.Balance,
			}, "Cash", nil
		}
		if !isConflict(err) {
			return domain.BalanceChange{}, "", err
		}
		s.metrics.IncrConflictRetry(domain.KindCashInHand)
		lastErr = err
	}
	return domain.BalanceChange{}, "", lastErr
}

// chargeCard applies an expense-shaped amount to a card: non-gift cards
// take on debt, gift cards spend stored value. A negative amount undoes
// the same.
func (s *LedgerService) chargeCard(ctx context.Context, userID, cardID string, amount float64) (domain.BalanceChange, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		card, err := s.store.GetCard(ctx, userID, cardID)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		delta := amount
		if card.IsGiftCard {
			delta = -amount
		}
		before := card.Balance
		nb, err := ledger.ApplyCardDelta(card, delta)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		card.Balance = nb
		updated, err := s.store.UpdateCard(ctx, card, card.Revision)
		if err == nil {
			return domain.BalanceChange{
				Kind: domain.KindCreditCard, EntityID: card.ID, Before: before, After: updated.Balance,
			}, card.Name, nil
		}
		if !isConflict(err) {
			return domain.BalanceChange{}, "", err
		}
		s.metrics.IncrConflictRetry(domain.KindCreditCard)
		lastErr = err
	}
	return domain.BalanceChange{}, "", lastErr
}

// mutateCardBalance applies a raw signed delta to a card balance,
// ignoring the gift-card sign flip. Used by payments and reversals.
func (s *LedgerService) mutateCardBalance(ctx context.Context, userID, cardID string, delta float64) (domain.BalanceChange, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		card, err := s.store.GetCard(ctx, userID, cardID)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		before := card.Balance
		nb, err := ledger.ApplyCardDelta(&domain.CreditCard{Balance: card.Balance}, delta)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		card.Balance = nb
		updated, err := s.store.UpdateCard(ctx, card, card.Revision)
		if err == nil {
			return domain.BalanceChange{
				Kind: domain.KindCreditCard, EntityID: card.ID, Before: before, After: updated.Balance,
			}, card.Name, nil
		}
		if !isConflict(err) {
			return domain.BalanceChange{}, "", err
		}
		s.metrics.IncrConflictRetry(domain.KindCreditCard)
		lastErr = err
	}
	return domain.BalanceChange{}, "", lastErr
}

// payLoan applies a payment to a loan and advances its recurrence in
// the same conditional write: next payment date, occurrence counter,
// and deactivation when exhausted or fully repaid.
func (s *LedgerService) payLoan(ctx context.Context, userID, loanID string, amount float64, date string) (domain.BalanceChange, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		loan, err := s.store.GetLoan(ctx, userID, loanID)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		before := loan.Balance
		loan.Balance = ledger.ApplyLoanPayment(loan, amount)
		if loan.Frequency != "" && loan.Frequency != domain.FreqOnetime {
			if next, nerr := schedule.NextDate(date, loan.Frequency); nerr == nil {
				loan.NextPaymentDate = next
			}
		}
		loan.OccurrenceCount++
		if loan.Balance == 0 ||
			schedule.Exhausted(loan.RecurringDuration, loan.RecurringEndDate, loan.OccurrenceCount, loan.MaxOccurrences, loan.NextPaymentDate) {
			loan.IsActive = false
		}
		updated, err := s.store.UpdateLoan(ctx, loan, loan.Revision)
		if err == nil {
			return domain.BalanceChange{
				Kind: domain.KindLoan, EntityID: loan.ID, Before: before, After: updated.Balance,
			}, loan.Name, nil
		}
		if !isConflict(err) {
			return domain.BalanceChange{}, "", err
		}
		s.metrics.IncrConflictRetry(domain.KindLoan)
		lastErr = err
	}
	return domain.BalanceChange{}, "", lastErr
}

// mutateLoanBalance applies a raw delta to a loan's principal without
// touching recurrence fields. Used by reversals.
func (s *LedgerService) mutateLoanBalance(ctx context.Context, userID, loanID string, delta float64) (domain.BalanceChange, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		loan, err := s.store.GetLoan(ctx, userID, loanID)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		before := loan.Balance
		nb := money.Normalize(money.Add(loan.Balance, delta))
		if money.Less(nb, 0) {
			nb = 0
		}
		loan.Balance = nb
		if nb > 0 {
			loan.IsActive = true
		}
		updated, err := s.store.UpdateLoan(ctx, loan, loan.Revision)
		if err == nil {
			return domain.BalanceChange{
				Kind: domain.KindLoan, EntityID: loan.ID, Before: before, After: updated.Balance,
			}, loan.Name, nil
		}
		if !isConflict(err) {
			return domain.BalanceChange{}, "", err
		}
		s.metrics.IncrConflictRetry(domain.KindLoan)
		lastErr = err
	}
	return domain.BalanceChange{}, "", lastErr
}

// drawFund draws a payment from a reserved fund. A recurring fund that
// is fully drained renews in the same write: amount back to original,
// due date advanced one step.
func (s *LedgerService) drawFund(ctx context.Context, userID, fundID string, amount float64) (domain.BalanceChange, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		fund, err := s.store.GetFund(ctx, userID, fundID)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		before := fund.Amount
		res, err := ledger.ApplyFundPayment(fund, amount)
		if err != nil {
			return domain.BalanceChange{}, "", err
		}
		fund.Amount = res.Amount
		fund.DueDate = res.DueDate
		updated, err := s.store.UpdateFund(ctx, fund, fund.Revision)
		if err == nil {
			if res.Renewed {
				s.logger.Info("reserved fund renewed",
					zap.String("fund_id", fund.ID),
					zap.String("next_due", fund.DueDate),
				)
			}
			return domain.BalanceChange{
				Kind: domain.KindReservedFund, EntityID: fund.ID, Before: before, After: updated.Amount,
			}, fund.Name, nil
		}
		if !isConflict(err) {
			return domain.BalanceChange{}, "", err
		}
		s.metrics.IncrConflictRetry(domain.KindReservedFund)
		lastErr = err
	}
	return domain.BalanceChange{}, "", lastErr
}

// ============================================================
// Expense posting
// ============================================================

func (s *LedgerService) PostExpense(ctx context.Context, userID string, req *domain.ExpenseRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.PostExpense")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Float64("amount", req.Amount))

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("post_expense", time.Since(start)) }()

	// Validate
	if req.Amount <= 0 || money.Negligible(req.Amount) {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if err := validDate(req.Date); err != nil {
		return nil, err
	}
	amount := money.Round2(req.Amount)

	// Mutate the funding entity
	var (
		change   domain.BalanceChange
		name     string
		err      error
		methodID = req.PaymentMethodID
	)
	switch req.PaymentMethod {
	case domain.MethodCreditCard:
		if req.PaymentMethodID == "" {
			return nil, &domain.ErrValidation{Field: "payment_method_id", Message: "required"}
		}
		change, name, err = s.chargeCard(ctx, userID, req.PaymentMethodID, amount)
	case domain.MethodBankAccount:
		if req.PaymentMethodID == "" {
			return nil, &domain.ErrValidation{Field: "payment_method_id", Message: "required"}
		}
		change, name, err = s.mutateAccount(ctx, userID, req.PaymentMethodID, -amount)
	case domain.MethodCashInHand:
		change, name, err = s.mutateCash(ctx, userID, -amount)
		methodID = change.EntityID
	case domain.MethodReservedFund:
		return nil, &domain.ErrValidation{Field: "payment_method", Message: "reserved funds cannot fund expenses"}
	default:
		return nil, &domain.ErrValidation{Field: "payment_method", Message: fmt.Sprintf("unknown payment method '%s'", req.PaymentMethod)}
	}
	if err != nil {
		return nil, err
	}

	// Record the transaction
	tx := &domain.Transaction{
		UserID:          userID,
		Type:            domain.TxExpense,
		Amount:          amount,
		Date:            req.Date,
		Description:     req.Description,
		CategoryID:      req.CategoryID,
		PaymentMethod:   req.PaymentMethod,
		PaymentMethodID: methodID,
		Status:          domain.TxActive,
	}
	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		s.logger.Error("failed to record expense transaction after balance update",
			zap.String("user_id", userID),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	// Log activity
	if err := s.appendActivity(ctx, &domain.ActivityRecord{
		UserID:      userID,
		ActionType:  domain.ActionExpense,
		EntityType:  string(change.Kind),
		EntityID:    change.EntityID,
		EntityName:  name,
		Description: fmt.Sprintf("Expense of %.2f via %s", amount, name),
		Snapshot: domain.ActivitySnapshot{
			TransactionID: created.ID,
			Balances:      []domain.BalanceChange{change},
		},
	}); err != nil {
		return nil, err
	}

	s.metrics.IncrTransactionPosted(domain.TxExpense)
	s.logger.Info("expense posted",
		zap.String("user_id", userID),
		zap.String("transaction_id", created.ID),
		zap.Float64("amount", amount),
		zap.String("payment_method", string(req.PaymentMethod)),
	)
	return created, nil
}

// ============================================================
// Income posting
// ============================================================

// PostIncome deposits a one-off income, or registers an income schedule
// when a recurring frequency is given. Scheduled occurrences are posted
// by ProcessIncomeSchedules when their date arrives.
func (s *LedgerService) PostIncome(ctx context.Context, userID string, req *domain.IncomeRequest) (*domain.IncomeResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.PostIncome")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Float64("amount", req.Amount))

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("post_income", time.Since(start)) }()

	if req.Amount <= 0 || money.Negligible(req.Amount) {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if err := validDate(req.Date); err != nil {
		return nil, err
	}
	if req.Source == "" {
		return nil, &domain.ErrValidation{Field: "source", Message: "required"}
	}
	switch req.Destination {
	case domain.MethodBankAccount, domain.MethodCashInHand:
	case domain.MethodCreditCard, domain.MethodReservedFund:
		return nil, &domain.ErrValidation{Field: "destination", Message: "income must go to a bank account or cash"}
	default:
		return nil, &domain.ErrValidation{Field: "destination", Message: fmt.Sprintf("unknown destination '%s'", req.Destination)}
	}
	amount := money.Round2(req.Amount)

	// Recurring income registers a schedule rather than a bare record.
	if req.Frequency != "" && req.Frequency != domain.FreqOnetime {
		if !schedule.ValidFrequency(req.Frequency) {
			return nil, &domain.ErrValidation{Field: "frequency", Message: fmt.Sprintf("unknown frequency '%s'", req.Frequency)}
		}
		dur := req.RecurringDuration
		if dur == "" {
			dur = domain.DurationIndefinite
		}
		sched := &domain.IncomeSchedule{
			UserID:            userID,
			Source:            req.Source,
			Amount:            amount,
			Frequency:         req.Frequency,
			NextDate:          req.Date,
			Destination:       req.Destination,
			DestinationID:     req.DestinationID,
			RecurringDuration: dur,
			RecurringEndDate:  req.RecurringEndDate,
			MaxOccurrences:    req.MaxOccurrences,
			IsActive:          true,
		}
		created, err := s.store.CreateSchedule(ctx, sched)
		if err != nil {
			return nil, err
		}
		s.logger.Info("income schedule registered",
			zap.String("user_id", userID),
			zap.String("schedule_id", created.ID),
			zap.String("frequency", string(req.Frequency)),
			zap.String("next_date", created.NextDate),
		)
		return &domain.IncomeResult{Schedule: created}, nil
	}

	tx, err := s.depositIncome(ctx, userID, amount, req.Date, req.Source, req.Destination, req.DestinationID)
	if err != nil {
		return nil, err
	}
	return &domain.IncomeResult{Transaction: tx}, nil
}

// depositIncome applies a single income occurrence: credit the
// destination, record the transaction, log activity.
func (s *LedgerService) depositIncome(ctx context.Context, userID string, amount float64, date, source string, dest domain.PaymentMethod, destID string) (*domain.Transaction, error) {
	var (
		change   domain.BalanceChange
		name     string
		err      error
		methodID = destID
	)
	switch dest {
	case domain.MethodBankAccount:
		if destID == "" {
			primary, perr := s.store.GetPrimaryAccount(ctx, userID)
			if perr != nil {
				return nil, perr
			}
			destID = primary.ID
			methodID = primary.ID
		}
		change, name, err = s.mutateAccount(ctx, userID, destID, amount)
	case domain.MethodCashInHand:
		change, name, err = s.mutateCash(ctx, userID, amount)
		methodID = change.EntityID
	default:
		return nil, &domain.ErrValidation{Field: "destination", Message: fmt.Sprintf("unknown destination '%s'", dest)}
	}
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		UserID:          userID,
		Type:            domain.TxIncome,
		Amount:          amount,
		Date:            date,
		PaymentMethod:   dest,
		PaymentMethodID: methodID,
		IncomeSource:    source,
		Status:          domain.TxActive,
	}
	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		s.logger.Error("failed to record income transaction after balance update",
			zap.String("user_id", userID),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.appendActivity(ctx, &domain.ActivityRecord{
		UserID:      userID,
		ActionType:  domain.ActionIncome,
		EntityType:  string(change.Kind),
		EntityID:    change.EntityID,
		EntityName:  name,
		Description: fmt.Sprintf("Income of %.2f from %s", amount, source),
		Snapshot: domain.ActivitySnapshot{
			TransactionID: created.ID,
			Balances:      []domain.BalanceChange{change},
		},
	}); err != nil {
		return nil, err
	}

	s.metrics.IncrTransactionPosted(domain.TxIncome)
	s.logger.Info("income posted",
		zap.String("user_id", userID),
		zap.String("transaction_id", created.ID),
		zap.Float64("amount", amount),
		zap.String("source", source),
	)
	return created, nil
}

// ============================================================
// Payment posting
// ============================================================

func (s *LedgerService) PostPayment(ctx context.Context, userID string, req *domain.PaymentRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.PostPayment")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Float64("amount", req.Amount))

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("post_payment", time.Since(start)) }()

	if req.Amount <= 0 || money.Negligible(req.Amount) {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if err := validDate(req.Date); err != nil {
		return nil, err
	}
	if req.TargetID == "" {
		return nil, &domain.ErrValidation{Field: "target_id", Message: "required"}
	}
	amount := money.Round2(req.Amount)

	// Resolve the target and check for overpayment
	var targetBalance float64
	switch req.TargetKind {
	case domain.KindCreditCard:
		card, err := s.store.GetCard(ctx, userID, req.TargetID)
		if err != nil {
			return nil, err
		}
		if card.IsGiftCard {
			return nil, &domain.ErrValidation{Field: "target_id", Message: "gift cards are not payable debts"}
		}
		targetBalance = card.Balance
	case domain.KindLoan:
		loan, err := s.store.GetLoan(ctx, userID, req.TargetID)
		if err != nil {
			return nil, err
		}
		targetBalance = loan.Balance
	case domain.KindBankAccount, domain.KindReservedFund, domain.KindCashInHand:
		return nil, &domain.ErrValidation{Field: "target_kind", Message: "payment target must be a credit card or loan"}
	default:
		return nil, &domain.ErrValidation{Field: "target_kind", Message: fmt.Sprintf("unknown target kind '%s'", req.TargetKind)}
	}
	if excess := money.Sub(amount, targetBalance); money.Greater(excess, 0) && !money.Negligible(excess) && !req.AllowOverpayment {
		return nil, &domain.ErrOverpayment{Outstanding: targetBalance, Requested: amount}
	}

	// Verify the source can cover the amount before touching the target.
	// Credit-card sources are uncapped (charging a card to pay a debt).
	if err := s.checkSource(ctx, userID, req.Source, req.SourceID, amount); err != nil {
		return nil, err
	}

	// Mutate target
	var (
		targetChange domain.BalanceChange
		targetName   string
		err          error
	)
	switch req.TargetKind {
	case domain.KindCreditCard:
		targetChange, targetName, err = s.mutateCardBalance(ctx, userID, req.TargetID, -amount)
	case domain.KindLoan:
		targetChange, targetName, err = s.payLoan(ctx, userID, req.TargetID, amount, req.Date)
	}
	if err != nil {
		return nil, err
	}

	// Mutate source
	var (
		sourceChange domain.BalanceChange
		sourceName   string
		sourceID     = req.SourceID
	)
	switch req.Source {
	case domain.MethodCashInHand:
		sourceChange, sourceName, err = s.mutateCash(ctx, userID, -amount)
		sourceID = sourceChange.EntityID
	case domain.MethodBankAccount:
		sourceChange, sourceName, err = s.mutateAccount(ctx, userID, req.SourceID, -amount)
	case domain.MethodReservedFund:
		sourceChange, sourceName, err = s.drawFund(ctx, userID, req.SourceID, amount)
	case domain.MethodCreditCard:
		sourceChange, sourceName, err = s.chargeCard(ctx, userID, req.SourceID, amount)
	default:
		err = &domain.ErrValidation{Field: "source", Message: fmt.Sprintf("unknown source '%s'", req.Source)}
	}
	if err != nil {
		// Target already moved; surface the error, the activity log is
		// the manual repair path.
		s.logger.Error("payment source mutation failed after target update",
			zap.String("user_id", userID),
			zap.String("target_id", req.TargetID),
			zap.Error(err),
		)
		return nil, err
	}

	tx := &domain.Transaction{
		UserID:          userID,
		Type:            domain.TxPayment,
		Amount:          amount,
		Date:            req.Date,
		Description:     fmt.Sprintf("Payment to %s from %s", targetName, sourceName),
		PaymentMethod:   req.Source,
		PaymentMethodID: sourceID,
		Status:          domain.TxActive,
	}
	switch req.TargetKind {
	case domain.KindCreditCard:
		tx.CardID = req.TargetID
	case domain.KindLoan:
		tx.LoanID = req.TargetID
	}
	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		s.logger.Error("failed to record payment transaction after balance updates",
			zap.String("user_id", userID),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.appendActivity(ctx, &domain.ActivityRecord{
		UserID:      userID,
		ActionType:  domain.ActionPayment,
		EntityType:  string(req.TargetKind),
		EntityID:    req.TargetID,
		EntityName:  targetName,
		Description: fmt.Sprintf("Payment of %.2f to %s from %s", amount, targetName, sourceName),
		Snapshot: domain.ActivitySnapshot{
			TransactionID: created.ID,
			Balances:      []domain.BalanceChange{targetChange, sourceChange},
		},
	}); err != nil {
		return nil, err
	}

	s.metrics.IncrTransactionPosted(domain.TxPayment)
	s.logger.Info("payment posted",
		zap.String("user_id", userID),
		zap.String("transaction_id", created.ID),
		zap.Float64("amount", amount),
		zap.String("target", req.TargetID),
		zap.String("source", string(req.Source)),
	)
	return created, nil
}

// checkSource verifies, against a fresh read, that the source would
// accept a debit of amount. Best-effort: a concurrent writer can still
// invalidate this between check and mutation.
func (s *LedgerService) checkSource(ctx context.Context, userID string, source domain.PaymentMethod, sourceID string, amount float64) error {
	switch source {
	case domain.MethodCashInHand:
		pool, err := s.store.GetCashPool(ctx, userID)
		if err != nil {
			return err
		}
		_, err = ledger.ApplyCashDelta(pool, -amount)
		return err
	case domain.MethodBankAccount:
		if sourceID == "" {
			return &domain.ErrValidation{Field: "source_id", Message: "required"}
		}
		acc, err := s.store.GetAccount(ctx, userID, sourceID)
		if err != nil {
			return err
		}
		_, err = ledger.ApplyAccountDelta(acc, -amount)
		return err
	case domain.MethodReservedFund:
		if sourceID == "" {
			return &domain.ErrValidation{Field: "source_id", Message: "required"}
		}
		fund, err := s.store.GetFund(ctx, userID, sourceID)
		if err != nil {
			return err
		}
		_, err = ledger.ApplyFundPayment(fund, amount)
		return err
	case domain.MethodCreditCard:
		if sourceID == "" {
			return &domain.ErrValidation{Field: "source_id", Message: "required"}
		}
		_, err := s.store.GetCard(ctx, userID, sourceID)
		return err
	default:
		return &domain.ErrValidation{Field: "source", Message: fmt.Sprintf("unknown source '%s'", source)}
	}
}

// appendActivity writes the audit record a posting is not durable
// without. The balance and transaction writes are not rolled back on
// failure; the caller surfaces the error so the user knows the posting
// is not durably logged.
func (s *LedgerService) appendActivity(ctx context.Context, rec *domain.ActivityRecord) error {
	if _, err := s.store.AppendActivity(ctx, rec); err != nil {
		s.logger.Error("failed to append activity record",
			zap.String("user_id", rec.UserID),
			zap.String("action", string(rec.ActionType)),
			zap.Error(err),
		)
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// ============================================================
// Ledger reads
// ============================================================

func (s *LedgerService) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListTransactions")
	defer span.End()

	return s.store.ListTransactions(ctx, userID, page, pageSize)
}

func (s *LedgerService) GetTransaction(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetTransaction")
	defer span.End()

	return s.store.GetTransaction(ctx, userID, txID)
}

func (s *LedgerService) ListActivity(ctx context.Context, userID string, page, pageSize int) ([]domain.ActivityRecord, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListActivity")
	defer span.End()

	return s.store.ListActivity(ctx, userID, page, pageSize)
}
