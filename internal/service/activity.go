package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fintrack/fintrack-api/internal/domain"

	"go.uber.org/zap"
)

// Activity undo. Ledger activities delegate to the transaction
// reversal engine; add/edit/delete activities are undone by restoring
// the prior-state snapshot the entity handlers stored.

func (s *LedgerService) UndoActivity(ctx context.Context, userID, activityID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.UndoActivity")
	defer span.End()

	rec, err := s.store.GetActivity(ctx, userID, activityID)
	if err != nil {
		return err
	}

	switch rec.ActionType {
	case domain.ActionExpense, domain.ActionIncome, domain.ActionPayment:
		if rec.Snapshot.TransactionID == "" {
			return &domain.ErrValidation{Field: "activity", Message: "ledger activity record has no linked transaction"}
		}
		// UndoTransaction deletes the activity record itself.
		_, err := s.UndoTransaction(ctx, userID, rec.Snapshot.TransactionID)
		return err

	case domain.ActionAdd:
		if err := s.removeEntity(ctx, userID, domain.EntityKind(rec.EntityType), rec.EntityID); err != nil {
			return err
		}

	case domain.ActionEdit, domain.ActionDelete:
		if rec.Snapshot.PriorEntity == nil {
			return &domain.ErrValidation{Field: "activity", Message: "activity record has no prior state to restore"}
		}
		if err := s.restoreEntity(ctx, userID, domain.EntityKind(rec.EntityType), rec.Snapshot.PriorEntity); err != nil {
			return err
		}

	default:
		return &domain.ErrValidation{Field: "action_type", Message: fmt.Sprintf("unknown action type '%s'", rec.ActionType)}
	}

	if err := s.store.DeleteActivity(ctx, userID, rec.ID); err != nil {
		s.logger.Warn("failed to delete activity record after undo",
			zap.String("activity_id", rec.ID),
			zap.Error(err),
		)
	}
	s.logger.Info("activity undone",
		zap.String("user_id", userID),
		zap.String("activity_id", rec.ID),
		zap.String("action", string(rec.ActionType)),
	)
	return nil
}

// removeEntity deletes the entity an "add" activity created.
func (s *LedgerService) removeEntity(ctx context.Context, userID string, kind domain.EntityKind, id string) error {
	var err error
	switch kind {
	case domain.KindBankAccount:
		err = s.store.DeleteAccount(ctx, userID, id)
	case domain.KindCreditCard:
		err = s.store.DeleteCard(ctx, userID, id)
	case domain.KindLoan:
		err = s.store.DeleteLoan(ctx, userID, id)
	case domain.KindReservedFund:
		err = s.store.DeleteFund(ctx, userID, id)
	default:
		return &domain.ErrValidation{Field: "entity_type", Message: fmt.Sprintf("cannot undo add of entity type '%s'", kind)}
	}
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil // already gone
		}
	}
	return err
}

// restoreEntity writes the snapshotted prior state back. If the entity
// still exists the restore is a conditional update against its current
// revision; if it was deleted since, the row is recreated.
func (s *LedgerService) restoreEntity(ctx context.Context, userID string, kind domain.EntityKind, prior map[string]any) error {
	raw, err := json.Marshal(prior)
	if err != nil {
		return fmt.Errorf("encode prior state: %w", err)
	}

	switch kind {
	case domain.KindBankAccount:
		var account domain.BankAccount
		if err := json.Unmarshal(raw, &account); err != nil {
			return fmt.Errorf("decode prior bank account: %w", err)
		}
		account.UserID = userID
		current, gerr := s.store.GetAccount(ctx, userID, account.ID)
		if gerr != nil {
			if !isNotFound(gerr) {
				return gerr
			}
			_, cerr := s.store.CreateAccount(ctx, &account)
			return cerr
		}
		_, uerr := s.store.UpdateAccount(ctx, &account, current.Revision)
		return uerr

	case domain.KindCreditCard:
		var card domain.CreditCard
		if err := json.Unmarshal(raw, &card); err != nil {
			return fmt.Errorf("decode prior credit card: %w", err)
		}
		card.UserID = userID
		current, gerr := s.store.GetCard(ctx, userID, card.ID)
		if gerr != nil {
			if !isNotFound(gerr) {
				return gerr
			}
			_, cerr := s.store.CreateCard(ctx, &card)
			return cerr
		}
		_, uerr := s.store.UpdateCard(ctx, &card, current.Revision)
		return uerr

	case domain.KindLoan:
		var loan domain.Loan
		if err := json.Unmarshal(raw, &loan); err != nil {
			return fmt.Errorf("decode prior loan: %w", err)
		}
		loan.UserID = userID
		current, gerr := s.store.GetLoan(ctx, userID, loan.ID)
		if gerr != nil {
			if !isNotFound(gerr) {
				return gerr
			}
			_, cerr := s.store.CreateLoan(ctx, &loan)
			return cerr
		}
		_, uerr := s.store.UpdateLoan(ctx, &loan, current.Revision)
		return uerr

	case domain.KindReservedFund:
		var fund domain.ReservedFund
		if err := json.Unmarshal(raw, &fund); err != nil {
			return fmt.Errorf("decode prior reserved fund: %w", err)
		}
		fund.UserID = userID
		current, gerr := s.store.GetFund(ctx, userID, fund.ID)
		if gerr != nil {
			if !isNotFound(gerr) {
				return gerr
			}
			_, cerr := s.store.CreateFund(ctx, &fund)
			return cerr
		}
		_, uerr := s.store.UpdateFund(ctx, &fund, current.Revision)
		return uerr

	case domain.KindCashInHand:
		var pool domain.CashPool
		if err := json.Unmarshal(raw, &pool); err != nil {
			return fmt.Errorf("decode prior cash pool: %w", err)
		}
		pool.UserID = userID
		current, gerr := s.store.GetCashPool(ctx, userID)
		if gerr != nil {
			return gerr
		}
		pool.ID = current.ID
		_, uerr := s.store.UpdateCashPool(ctx, &pool, current.Revision)
		return uerr

	default:
		return &domain.ErrValidation{Field: "entity_type", Message: fmt.Sprintf("cannot restore entity type '%s'", kind)}
	}
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}
