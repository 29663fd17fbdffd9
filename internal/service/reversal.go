package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/money"

	"go.uber.org/zap"
)

// Reversal (undo) engine: replays the inverse balance deltas of a
// posted transaction, marks it undone, and retires its audit record.
//
// The undone flip happens first, as a conditional write, so two
// concurrent undos of the same transaction apply the inverse deltas at
// most once. If an entity referenced by the transaction has since been
// deleted (or its floor rejects the inverse delta), that entity is
// skipped with a warning and the reversal is reported partial rather
// than blocking the user.

// UndoTransaction reverses a posted transaction.
func (s *LedgerService) UndoTransaction(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.UndoTransaction")
	defer span.End()

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("undo_transaction", time.Since(start)) }()

	// Claim the transaction. First writer wins; a second undo gets
	// ErrAlreadyUndone from the conditional flip.
	tx, err := s.store.MarkTransactionUndone(ctx, userID, txID)
	if err != nil {
		return nil, err
	}

	partial := false
	switch tx.Type {
	case domain.TxIncome:
		partial = s.reverseIncome(ctx, tx)
	case domain.TxExpense:
		partial = s.reverseExpense(ctx, tx)
	case domain.TxPayment:
		partial = s.reversePayment(ctx, tx)
	default:
		// A row written by a newer schema version; the status flip
		// already stands, nothing to replay.
		s.logger.Warn("undo: unknown transaction type, no deltas replayed",
			zap.String("transaction_id", tx.ID),
			zap.String("type", string(tx.Type)),
		)
		partial = true
	}

	// Retire the audit record so the operation no longer shows as
	// undoable.
	if rec, aerr := s.store.GetActivityByTransaction(ctx, userID, txID); aerr == nil {
		if derr := s.store.DeleteActivity(ctx, userID, rec.ID); derr != nil {
			s.logger.Warn("undo: failed to delete activity record",
				zap.String("activity_id", rec.ID),
				zap.Error(derr),
			)
		}
	} else {
		var nf *domain.ErrNotFound
		if !errors.As(aerr, &nf) {
			s.logger.Warn("undo: failed to look up activity record",
				zap.String("transaction_id", txID),
				zap.Error(aerr),
			)
		}
	}

	outcome := "full"
	if partial {
		outcome = "partial"
	}
	s.metrics.IncrReversal(outcome)
	s.logger.Info("transaction undone",
		zap.String("user_id", userID),
		zap.String("transaction_id", txID),
		zap.String("type", string(tx.Type)),
		zap.String("outcome", outcome),
	)
	return tx, nil
}

// reverseIncome pulls the deposited amount back out of the destination.
func (s *LedgerService) reverseIncome(ctx context.Context, tx *domain.Transaction) (partial bool) {
	switch tx.PaymentMethod {
	case domain.MethodBankAccount:
		_, _, err := s.mutateAccount(ctx, tx.UserID, tx.PaymentMethodID, -tx.Amount)
		return s.noteSkip(err, tx, "income destination account")
	case domain.MethodCashInHand:
		_, _, err := s.mutateCash(ctx, tx.UserID, -tx.Amount)
		return s.noteSkip(err, tx, "cash pool")
	default:
		s.logger.Warn("undo: income with unexpected destination",
			zap.String("transaction_id", tx.ID),
			zap.String("destination", string(tx.PaymentMethod)),
		)
		return true
	}
}

// reverseExpense puts the spent amount back on the funding entity.
func (s *LedgerService) reverseExpense(ctx context.Context, tx *domain.Transaction) (partial bool) {
	switch tx.PaymentMethod {
	case domain.MethodBankAccount:
		_, _, err := s.mutateAccount(ctx, tx.UserID, tx.PaymentMethodID, tx.Amount)
		return s.noteSkip(err, tx, "expense funding account")
	case domain.MethodCashInHand:
		_, _, err := s.mutateCash(ctx, tx.UserID, tx.Amount)
		return s.noteSkip(err, tx, "cash pool")
	case domain.MethodCreditCard:
		// chargeCard with a negative amount inverts per the card's
		// gift flag: debt cards get uncharged, gift cards refunded.
		_, _, err := s.chargeCard(ctx, tx.UserID, tx.PaymentMethodID, -tx.Amount)
		return s.noteSkip(err, tx, "expense card")
	default:
		s.logger.Warn("undo: expense with unexpected payment method",
			zap.String("transaction_id", tx.ID),
			zap.String("payment_method", string(tx.PaymentMethod)),
		)
		return true
	}
}

// reversePayment re-raises the target debt and refunds the source.
func (s *LedgerService) reversePayment(ctx context.Context, tx *domain.Transaction) (partial bool) {
	// Target: re-increase debt/principal
	switch {
	case tx.CardID != "":
		_, _, err := s.mutateCardBalance(ctx, tx.UserID, tx.CardID, tx.Amount)
		partial = s.noteSkip(err, tx, "payment target card") || partial
	case tx.LoanID != "":
		_, _, err := s.mutateLoanBalance(ctx, tx.UserID, tx.LoanID, tx.Amount)
		partial = s.noteSkip(err, tx, "payment target loan") || partial
	default:
		s.logger.Warn("undo: payment without a target reference",
			zap.String("transaction_id", tx.ID),
		)
		partial = true
	}

	// Source: give the money back (or uncharge the card that funded it)
	switch tx.PaymentMethod {
	case domain.MethodCashInHand:
		_, _, err := s.mutateCash(ctx, tx.UserID, tx.Amount)
		partial = s.noteSkip(err, tx, "payment source cash") || partial
	case domain.MethodBankAccount:
		_, _, err := s.mutateAccount(ctx, tx.UserID, tx.PaymentMethodID, tx.Amount)
		partial = s.noteSkip(err, tx, "payment source account") || partial
	case domain.MethodReservedFund:
		partial = s.refundFund(ctx, tx) || partial
	case domain.MethodCreditCard:
		_, _, err := s.chargeCard(ctx, tx.UserID, tx.PaymentMethodID, -tx.Amount)
		partial = s.noteSkip(err, tx, "payment source card") || partial
	default:
		s.logger.Warn("undo: payment with unexpected source",
			zap.String("transaction_id", tx.ID),
			zap.String("source", string(tx.PaymentMethod)),
		)
		partial = true
	}
	return partial
}

// refundFund adds a reversed payment back into a reserved fund.
func (s *LedgerService) refundFund(ctx context.Context, tx *domain.Transaction) (partial bool) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		fund, err := s.store.GetFund(ctx, tx.UserID, tx.PaymentMethodID)
		if err != nil {
			return s.noteSkip(err, tx, "payment source fund")
		}
		fund.Amount = money.Add(fund.Amount, tx.Amount)
		if _, err := s.store.UpdateFund(ctx, fund, fund.Revision); err == nil {
			return false
		} else if !isConflict(err) {
			return s.noteSkip(err, tx, "payment source fund")
		}
		s.metrics.IncrConflictRetry(domain.KindReservedFund)
	}
	return true
}

// noteSkip logs a skipped reversal leg and reports whether the
// reversal became partial.
func (s *LedgerService) noteSkip(err error, tx *domain.Transaction, what string) bool {
	if err == nil {
		return false
	}
	s.logger.Warn(fmt.Sprintf("undo: skipping %s", what),
		zap.String("transaction_id", tx.ID),
		zap.Error(err),
	)
	return true
}

// DeleteTransaction reverses an active transaction first, then removes
// the row itself.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, txID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteTransaction")
	defer span.End()

	tx, err := s.store.GetTransaction(ctx, userID, txID)
	if err != nil {
		return err
	}
	if tx.Status == domain.TxActive {
		if _, err := s.UndoTransaction(ctx, userID, txID); err != nil {
			return err
		}
	}
	return s.store.DeleteTransaction(ctx, userID, txID)
}
