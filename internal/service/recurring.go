package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/money"
	"github.com/fintrack/fintrack-api/internal/schedule"

	"go.uber.org/zap"
)

// Recurring engine: the obligations view, non-interactive auto-pay from
// linked reserved funds, and income-schedule processing.

// maxOccurrencesPerRun caps how far a stale schedule catches up in one
// processing pass.
const maxOccurrencesPerRun = 52

// UpcomingObligations returns due cards, loans, and reserved funds
// within the user's global alert windows.
func (s *LedgerService) UpcomingObligations(ctx context.Context, userID string) ([]domain.Obligation, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.UpcomingObligations")
	defer span.End()

	cards, err := s.store.ListCards(ctx, userID)
	if err != nil {
		return nil, err
	}
	loans, err := s.store.ListLoans(ctx, userID)
	if err != nil {
		return nil, err
	}
	funds, err := s.store.ListFunds(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.GetAlertSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	return schedule.Upcoming(schedule.Inputs{
		Cards:    cards,
		Loans:    loans,
		Funds:    funds,
		Settings: *settings,
		Today:    s.now(),
	}), nil
}

// ============================================================
// Auto-pay
// ============================================================

// RunAutoPay pays every card and loan due today whose linked reserved
// fund can cover the payment in full. Obligations due today that cannot
// be covered are skipped whole, never partially paid. The
// last-auto-payment-date guard makes a same-day rerun a no-op.
func (s *LedgerService) RunAutoPay(ctx context.Context, userID string) (*domain.AutoPayResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.RunAutoPay")
	defer span.End()

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("autopay_run", time.Since(start)) }()

	today := s.now().UTC().Format(schedule.DateLayout)

	cards, err := s.store.ListCards(ctx, userID)
	if err != nil {
		return nil, err
	}
	loans, err := s.store.ListLoans(ctx, userID)
	if err != nil {
		return nil, err
	}
	funds, err := s.store.ListFunds(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &domain.AutoPayResult{Paid: []domain.Obligation{}, Skipped: []domain.Obligation{}}

	for i := range cards {
		card := &cards[i]
		if card.IsGiftCard || card.Balance <= 0 || card.DueDate != today {
			continue
		}
		if card.LastAutoPaymentDate == today {
			continue // already handled today
		}
		ob := domain.Obligation{
			Kind: domain.KindCreditCard, ID: card.ID, Name: card.Name,
			Amount: paymentAmount(card.PaymentAmount, card.Balance), DueDate: card.DueDate,
		}
		fund := linkedFundFor(funds, domain.KindCreditCard, card.ID, ob.Amount)
		if fund == nil {
			s.metrics.IncrAutopay("skipped")
			result.Skipped = append(result.Skipped, ob)
			continue
		}
		if !s.claimAutoPayCard(ctx, card, today) {
			continue // a concurrent run claimed it
		}
		if s.autoPay(ctx, userID, ob, domain.KindCreditCard, fund) {
			result.Paid = append(result.Paid, ob)
		} else {
			result.Skipped = append(result.Skipped, ob)
		}
	}

	for i := range loans {
		loan := &loans[i]
		if !loan.IsActive || loan.Balance <= 0 || loan.NextPaymentDate != today {
			continue
		}
		if loan.LastAutoPaymentDate == today {
			continue
		}
		ob := domain.Obligation{
			Kind: domain.KindLoan, ID: loan.ID, Name: loan.Name,
			Amount: paymentAmount(loan.PaymentAmount, loan.Balance), DueDate: loan.NextPaymentDate,
		}
		fund := linkedFundFor(funds, domain.KindLoan, loan.ID, ob.Amount)
		if fund == nil {
			s.metrics.IncrAutopay("skipped")
			result.Skipped = append(result.Skipped, ob)
			continue
		}
		if !s.claimAutoPayLoan(ctx, loan, today) {
			continue
		}
		if s.autoPay(ctx, userID, ob, domain.KindLoan, fund) {
			result.Paid = append(result.Paid, ob)
		} else {
			result.Skipped = append(result.Skipped, ob)
		}
	}

	s.logger.Info("auto-pay run finished",
		zap.String("user_id", userID),
		zap.Int("paid", len(result.Paid)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func paymentAmount(configured, balance float64) float64 {
	if configured <= 0 || money.Greater(configured, balance) {
		return balance
	}
	return configured
}

// linkedFundFor finds a reserved fund earmarked for the obligation with
// enough set aside to cover it fully.
func linkedFundFor(funds []domain.ReservedFund, kind domain.EntityKind, id string, amount float64) *domain.ReservedFund {
	for i := range funds {
		f := &funds[i]
		if f.CoversObligation(kind, id) && !money.Less(f.Amount, amount) {
			return f
		}
	}
	return nil
}

// claimAutoPayCard sets the idempotency guard before paying. The
// conditional write makes the claim at-most-once across concurrent
// runs.
func (s *LedgerService) claimAutoPayCard(ctx context.Context, card *domain.CreditCard, today string) bool {
	card.LastAutoPaymentDate = today
	if _, err := s.store.UpdateCard(ctx, card, card.Revision); err != nil {
		s.logger.Warn("auto-pay: failed to claim card",
			zap.String("card_id", card.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *LedgerService) claimAutoPayLoan(ctx context.Context, loan *domain.Loan, today string) bool {
	loan.LastAutoPaymentDate = today
	if _, err := s.store.UpdateLoan(ctx, loan, loan.Revision); err != nil {
		s.logger.Warn("auto-pay: failed to claim loan",
			zap.String("loan_id", loan.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// autoPay posts the payment from the linked fund. Sufficiency was
// checked against a fresh list; a race that drained the fund since then
// surfaces as a skip.
func (s *LedgerService) autoPay(ctx context.Context, userID string, ob domain.Obligation, kind domain.EntityKind, fund *domain.ReservedFund) bool {
	_, err := s.PostPayment(ctx, userID, &domain.PaymentRequest{
		Amount:     ob.Amount,
		Date:       ob.DueDate,
		TargetKind: kind,
		TargetID:   ob.ID,
		Source:     domain.MethodReservedFund,
		SourceID:   fund.ID,
	})
	if err != nil {
		s.metrics.IncrAutopay("skipped")
		s.logger.Warn("auto-pay: payment failed, obligation left due",
			zap.String("target_id", ob.ID),
			zap.String("fund_id", fund.ID),
			zap.Error(err),
		)
		return false
	}
	s.metrics.IncrAutopay("paid")
	return true
}

// ============================================================
// Income schedule processing
// ============================================================

// ProcessIncomeSchedules posts one income occurrence per due date for
// every active schedule whose next date has arrived, advancing the
// schedule as it goes.
func (s *LedgerService) ProcessIncomeSchedules(ctx context.Context, userID string) (*domain.ScheduleRunResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ProcessIncomeSchedules")
	defer span.End()

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("process_schedules", time.Since(start)) }()

	today := s.now()

	scheds, err := s.store.ListSchedules(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &domain.ScheduleRunResult{Processed: []domain.Transaction{}}
	for i := range scheds {
		sched := scheds[i]
		for n := 0; n < maxOccurrencesPerRun; n++ {
			if !sched.IsActive {
				break
			}
			days, derr := schedule.DaysUntil(sched.NextDate, today)
			if derr != nil || days > 0 {
				break
			}

			tx, perr := s.depositIncome(ctx, userID, sched.Amount, sched.NextDate, sched.Source, sched.Destination, sched.DestinationID)
			if perr != nil {
				s.logger.Error("schedule processing: failed to post income occurrence",
					zap.String("schedule_id", sched.ID),
					zap.String("date", sched.NextDate),
					zap.Error(perr),
				)
				break
			}
			result.Processed = append(result.Processed, *tx)

			advanced, aerr := s.advanceSchedule(ctx, &sched)
			if aerr != nil {
				s.logger.Error("schedule processing: failed to advance schedule",
					zap.String("schedule_id", sched.ID),
					zap.Error(aerr),
				)
				break
			}
			sched = *advanced
		}
	}

	s.logger.Info("income schedules processed",
		zap.String("user_id", userID),
		zap.Int("occurrences", len(result.Processed)),
	)
	return result, nil
}

// advanceSchedule moves a schedule past the occurrence just posted.
// On a revision conflict it reloads; if another run already advanced
// past the posted date, that write stands.
func (s *LedgerService) advanceSchedule(ctx context.Context, sched *domain.IncomeSchedule) (*domain.IncomeSchedule, error) {
	postedDate := sched.NextDate
	next, err := schedule.NextDate(postedDate, sched.Frequency)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		sched.NextDate = next
		sched.OccurrenceCount++
		if sched.Frequency == domain.FreqOnetime ||
			schedule.Exhausted(sched.RecurringDuration, sched.RecurringEndDate, sched.OccurrenceCount, sched.MaxOccurrences, sched.NextDate) {
			sched.IsActive = false
		}
		updated, uerr := s.store.UpdateSchedule(ctx, sched, sched.Revision)
		if uerr == nil {
			return updated, nil
		}
		if !isConflict(uerr) {
			return nil, uerr
		}
		reloaded, gerr := s.store.GetSchedule(ctx, sched.UserID, sched.ID)
		if gerr != nil {
			return nil, gerr
		}
		if reloaded.NextDate != postedDate {
			return reloaded, nil // someone else advanced it
		}
		*sched = *reloaded
	}
	return nil, &domain.ErrConflict{Message: "income schedule modified concurrently"}
}

// ============================================================
// Schedule CRUD
// ============================================================

func (s *LedgerService) CreateSchedule(ctx context.Context, sched *domain.IncomeSchedule) (*domain.IncomeSchedule, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateSchedule")
	defer span.End()

	if sched.Source == "" {
		return nil, &domain.ErrValidation{Field: "source", Message: "required"}
	}
	if sched.Amount <= 0 || money.Negligible(sched.Amount) {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if err := validDate(sched.NextDate); err != nil {
		return nil, err
	}
	if !schedule.ValidFrequency(sched.Frequency) || sched.Frequency == domain.FreqOnetime {
		return nil, &domain.ErrValidation{Field: "frequency", Message: fmt.Sprintf("schedules require a recurring frequency, got '%s'", sched.Frequency)}
	}
	switch sched.Destination {
	case domain.MethodBankAccount, domain.MethodCashInHand:
	default:
		return nil, &domain.ErrValidation{Field: "destination", Message: "income must go to a bank account or cash"}
	}
	switch sched.RecurringDuration {
	case "":
		sched.RecurringDuration = domain.DurationIndefinite
	case domain.DurationIndefinite:
	case domain.DurationUntilDate:
		if err := validDate(sched.RecurringEndDate); err != nil {
			return nil, err
		}
	case domain.DurationOccurrences:
		if sched.MaxOccurrences <= 0 {
			return nil, &domain.ErrValidation{Field: "max_occurrences", Message: "must be positive"}
		}
	default:
		return nil, &domain.ErrValidation{Field: "recurring_duration_type", Message: fmt.Sprintf("unknown duration '%s'", sched.RecurringDuration)}
	}

	sched.Amount = money.Round2(sched.Amount)
	sched.OccurrenceCount = 0
	sched.IsActive = true
	return s.store.CreateSchedule(ctx, sched)
}

func (s *LedgerService) ListSchedules(ctx context.Context, userID string) ([]domain.IncomeSchedule, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListSchedules")
	defer span.End()

	return s.store.ListSchedules(ctx, userID)
}

func (s *LedgerService) GetSchedule(ctx context.Context, userID, scheduleID string) (*domain.IncomeSchedule, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetSchedule")
	defer span.End()

	return s.store.GetSchedule(ctx, userID, scheduleID)
}

func (s *LedgerService) DeleteSchedule(ctx context.Context, userID, scheduleID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteSchedule")
	defer span.End()

	return s.store.DeleteSchedule(ctx, userID, scheduleID)
}
