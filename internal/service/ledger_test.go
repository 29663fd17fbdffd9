package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/infra/observability"
	"github.com/fintrack/fintrack-api/internal/service"

	"go.uber.org/zap"
)

const testUser = "user-1"

func newLedgerService(store *fakeStore) *service.LedgerService {
	return service.NewLedgerService(store, observability.NewMetrics(), zap.NewNop())
}

// --- Expenses ---

func TestPostExpense_BankAccount(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 100, Revision: 1}
	svc := newLedgerService(store)

	tx, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          40,
		Date:            "2024-03-10",
		Description:     "Groceries",
		PaymentMethod:   domain.MethodBankAccount,
		PaymentMethodID: "acc-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Type != domain.TxExpense || tx.Status != domain.TxActive {
		t.Errorf("unexpected transaction: %+v", tx)
	}
	if got := store.accounts["acc-1"].Balance; got != 60 {
		t.Errorf("expected balance 60, got %v", got)
	}

	rec, err := store.GetActivityByTransaction(context.Background(), testUser, tx.ID)
	if err != nil {
		t.Fatalf("expected an activity record, got %v", err)
	}
	if rec.ActionType != domain.ActionExpense {
		t.Errorf("expected expense activity, got %s", rec.ActionType)
	}
	if len(rec.Snapshot.Balances) != 1 || rec.Snapshot.Balances[0].Before != 100 || rec.Snapshot.Balances[0].After != 60 {
		t.Errorf("unexpected balance snapshot: %+v", rec.Snapshot.Balances)
	}
}

func TestPostExpense_InsufficientFunds(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 10, Revision: 1}
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          40,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodBankAccount,
		PaymentMethodID: "acc-1",
	})
	var insufficient *domain.ErrInsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := store.accounts["acc-1"].Balance; got != 10 {
		t.Errorf("balance should be untouched, got %v", got)
	}
	if len(store.txs) != 0 {
		t.Errorf("no transaction should be recorded, got %d", len(store.txs))
	}
}

func TestPostExpense_OverdraftWithinLimit(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{
		ID: "acc-1", UserID: testUser, Name: "Checking",
		Balance: 10, AllowsOverdraft: true, OverdraftLimit: 50, Revision: 1,
	}
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          40,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodBankAccount,
		PaymentMethodID: "acc-1",
	})
	if err != nil {
		t.Fatalf("expected overdraft to be allowed, got %v", err)
	}
	if got := store.accounts["acc-1"].Balance; got != -30 {
		t.Errorf("expected balance -30, got %v", got)
	}
}

func TestPostExpense_GiftCardSpendsStoredValue(t *testing.T) {
	store := newFakeStore()
	store.cards["gift-1"] = domain.CreditCard{ID: "gift-1", UserID: testUser, Name: "Gift", IsGiftCard: true, Balance: 50, Revision: 1}
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          20,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodCreditCard,
		PaymentMethodID: "gift-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := store.cards["gift-1"].Balance; got != 30 {
		t.Errorf("expected stored value 30, got %v", got)
	}

	// Draining past the stored value is rejected.
	_, err = svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          31,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodCreditCard,
		PaymentMethodID: "gift-1",
	})
	var insufficient *domain.ErrInsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestPostExpense_CreditCardGrowsDebt(t *testing.T) {
	store := newFakeStore()
	store.cards["card-1"] = domain.CreditCard{ID: "card-1", UserID: testUser, Name: "Visa", Balance: 100, Revision: 1}
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          25.5,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodCreditCard,
		PaymentMethodID: "card-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := store.cards["card-1"].Balance; got != 125.5 {
		t.Errorf("expected debt 125.5, got %v", got)
	}
}

func TestPostExpense_UnknownPaymentMethod(t *testing.T) {
	store := newFakeStore()
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:        10,
		Date:          "2024-03-10",
		PaymentMethod: domain.PaymentMethod("bitcoin"),
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPostExpense_ReservedFundRejected(t *testing.T) {
	store := newFakeStore()
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          10,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodReservedFund,
		PaymentMethodID: "fund-1",
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPostExpense_RetriesOnRevisionConflict(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 100, Revision: 1}
	store.injectConflict("acc-1", 1)
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          40,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodBankAccount,
		PaymentMethodID: "acc-1",
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := store.accounts["acc-1"].Balance; got != 60 {
		t.Errorf("expected balance 60 after retry, got %v", got)
	}
}

// --- Income ---

func TestPostIncome_DepositToBankAccount(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 0, Revision: 1}
	svc := newLedgerService(store)

	result, err := svc.PostIncome(context.Background(), testUser, &domain.IncomeRequest{
		Amount:        1000,
		Date:          "2024-03-01",
		Source:        "Salary",
		Destination:   domain.MethodBankAccount,
		DestinationID: "acc-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Transaction == nil || result.Schedule != nil {
		t.Fatalf("expected an immediate transaction, got %+v", result)
	}
	if result.Transaction.Type != domain.TxIncome {
		t.Errorf("expected income type, got %s", result.Transaction.Type)
	}
	if got := store.accounts["acc-1"].Balance; got != 1000 {
		t.Errorf("expected balance 1000, got %v", got)
	}
	if _, err := store.GetActivityByTransaction(context.Background(), testUser, result.Transaction.ID); err != nil {
		t.Errorf("expected an activity record referencing the transaction: %v", err)
	}
}

func TestPostIncome_DefaultsToPrimaryAccount(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", IsPrimary: true, Balance: 50, Revision: 1}
	svc := newLedgerService(store)

	result, err := svc.PostIncome(context.Background(), testUser, &domain.IncomeRequest{
		Amount:      100,
		Date:        "2024-03-01",
		Source:      "Refund",
		Destination: domain.MethodBankAccount,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Transaction.PaymentMethodID != "acc-1" {
		t.Errorf("expected deposit to primary account, got %s", result.Transaction.PaymentMethodID)
	}
	if got := store.accounts["acc-1"].Balance; got != 150 {
		t.Errorf("expected balance 150, got %v", got)
	}
}

func TestPostIncome_RecurringRegistersSchedule(t *testing.T) {
	store := newFakeStore()
	svc := newLedgerService(store)

	result, err := svc.PostIncome(context.Background(), testUser, &domain.IncomeRequest{
		Amount:      2500,
		Date:        "2024-04-01",
		Source:      "Salary",
		Destination: domain.MethodCashInHand,
		Frequency:   domain.FreqMonthly,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Schedule == nil || result.Transaction != nil {
		t.Fatalf("expected a schedule, got %+v", result)
	}
	if result.Schedule.NextDate != "2024-04-01" || !result.Schedule.IsActive {
		t.Errorf("unexpected schedule: %+v", result.Schedule)
	}
	if len(store.txs) != 0 {
		t.Errorf("recurring income must not post immediately, got %d transactions", len(store.txs))
	}
}

func TestPostIncome_RejectsCardDestination(t *testing.T) {
	store := newFakeStore()
	svc := newLedgerService(store)

	_, err := svc.PostIncome(context.Background(), testUser, &domain.IncomeRequest{
		Amount:      100,
		Date:        "2024-03-01",
		Source:      "Salary",
		Destination: domain.MethodCreditCard,
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// --- Payments ---

func TestPostPayment_CardFromBankAccount(t *testing.T) {
	store := newFakeStore()
	store.cards["card-1"] = domain.CreditCard{ID: "card-1", UserID: testUser, Name: "Visa", Balance: 50, Revision: 1}
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 100, Revision: 1}
	svc := newLedgerService(store)

	tx, err := svc.PostPayment(context.Background(), testUser, &domain.PaymentRequest{
		Amount:     50,
		Date:       "2024-03-15",
		TargetKind: domain.KindCreditCard,
		TargetID:   "card-1",
		Source:     domain.MethodBankAccount,
		SourceID:   "acc-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Type != domain.TxPayment || tx.CardID != "card-1" {
		t.Errorf("unexpected transaction: %+v", tx)
	}
	if got := store.cards["card-1"].Balance; got != 0 {
		t.Errorf("expected card debt 0, got %v", got)
	}
	if got := store.accounts["acc-1"].Balance; got != 50 {
		t.Errorf("expected account balance 50, got %v", got)
	}

	rec, err := store.GetActivityByTransaction(context.Background(), testUser, tx.ID)
	if err != nil {
		t.Fatalf("expected an activity record, got %v", err)
	}
	if len(rec.Snapshot.Balances) != 2 {
		t.Errorf("expected both balance changes in the snapshot, got %+v", rec.Snapshot.Balances)
	}
}

func TestPostPayment_OverpaymentRejectedWithoutConsent(t *testing.T) {
	store := newFakeStore()
	store.cards["card-1"] = domain.CreditCard{ID: "card-1", UserID: testUser, Name: "Visa", Balance: 30, Revision: 1}
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 100, Revision: 1}
	svc := newLedgerService(store)

	_, err := svc.PostPayment(context.Background(), testUser, &domain.PaymentRequest{
		Amount:     50,
		Date:       "2024-03-15",
		TargetKind: domain.KindCreditCard,
		TargetID:   "card-1",
		Source:     domain.MethodBankAccount,
		SourceID:   "acc-1",
	})
	var overpayment *domain.ErrOverpayment
	if !errors.As(err, &overpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
	if overpayment.Outstanding != 30 || overpayment.Requested != 50 {
		t.Errorf("unexpected overpayment detail: %+v", overpayment)
	}
	if got := store.cards["card-1"].Balance; got != 30 {
		t.Errorf("card debt should be untouched, got %v", got)
	}

	// With explicit consent the payment proceeds and the debt floors at zero.
	_, err = svc.PostPayment(context.Background(), testUser, &domain.PaymentRequest{
		Amount:           50,
		Date:             "2024-03-15",
		TargetKind:       domain.KindCreditCard,
		TargetID:         "card-1",
		Source:           domain.MethodBankAccount,
		SourceID:         "acc-1",
		AllowOverpayment: true,
	})
	if err != nil {
		t.Fatalf("expected consented overpayment to succeed, got %v", err)
	}
	if got := store.cards["card-1"].Balance; got != 0 {
		t.Errorf("expected card debt 0, got %v", got)
	}
	if got := store.accounts["acc-1"].Balance; got != 50 {
		t.Errorf("expected account balance 50, got %v", got)
	}
}

func TestPostPayment_GiftCardTargetRejected(t *testing.T) {
	store := newFakeStore()
	store.cards["gift-1"] = domain.CreditCard{ID: "gift-1", UserID: testUser, Name: "Gift", IsGiftCard: true, Balance: 50, Revision: 1}
	svc := newLedgerService(store)

	_, err := svc.PostPayment(context.Background(), testUser, &domain.PaymentRequest{
		Amount:     10,
		Date:       "2024-03-15",
		TargetKind: domain.KindCreditCard,
		TargetID:   "gift-1",
		Source:     domain.MethodCashInHand,
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPostPayment_InsufficientSourceLeavesTargetUntouched(t *testing.T) {
	store := newFakeStore()
	store.cards["card-1"] = domain.CreditCard{ID: "card-1", UserID: testUser, Name: "Visa", Balance: 50, Revision: 1}
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 20, Revision: 1}
	svc := newLedgerService(store)

	_, err := svc.PostPayment(context.Background(), testUser, &domain.PaymentRequest{
		Amount:     50,
		Date:       "2024-03-15",
		TargetKind: domain.KindCreditCard,
		TargetID:   "card-1",
		Source:     domain.MethodBankAccount,
		SourceID:   "acc-1",
	})
	var insufficient *domain.ErrInsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := store.cards["card-1"].Balance; got != 50 {
		t.Errorf("target must be untouched when the source check fails, got %v", got)
	}
	if got := store.accounts["acc-1"].Balance; got != 20 {
		t.Errorf("source must be untouched, got %v", got)
	}
}

func TestPostPayment_RecurringFundRenewsWhenDrained(t *testing.T) {
	store := newFakeStore()
	store.cards["card-1"] = domain.CreditCard{ID: "card-1", UserID: testUser, Name: "Visa", Balance: 100, Revision: 1}
	store.funds["fund-1"] = domain.ReservedFund{
		ID: "fund-1", UserID: testUser, Name: "Card fund",
		Amount: 100, OriginalAmount: 100,
		DueDate: "2024-05-01", Recurring: true, Frequency: domain.FreqMonthly,
		LinkedTo: &domain.FundLink{Kind: domain.KindCreditCard, ID: "card-1"},
		Revision: 1,
	}
	svc := newLedgerService(store)

	_, err := svc.PostPayment(context.Background(), testUser, &domain.PaymentRequest{
		Amount:     100,
		Date:       "2024-05-01",
		TargetKind: domain.KindCreditCard,
		TargetID:   "card-1",
		Source:     domain.MethodReservedFund,
		SourceID:   "fund-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	fund := store.funds["fund-1"]
	if fund.Amount != 100 {
		t.Errorf("expected fund to renew to 100, got %v", fund.Amount)
	}
	if fund.DueDate != "2024-06-01" {
		t.Errorf("expected due date to advance to 2024-06-01, got %s", fund.DueDate)
	}
	if got := store.cards["card-1"].Balance; got != 0 {
		t.Errorf("expected card debt 0, got %v", got)
	}
}

func TestPostPayment_LoanDeactivatesAtZero(t *testing.T) {
	store := newFakeStore()
	store.loans["loan-1"] = domain.Loan{
		ID: "loan-1", UserID: testUser, Name: "Car loan",
		Balance: 200, PaymentAmount: 200, NextPaymentDate: "2024-03-15",
		Frequency: domain.FreqMonthly, IsActive: true, Revision: 1,
	}
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 500, Revision: 1}
	svc := newLedgerService(store)

	tx, err := svc.PostPayment(context.Background(), testUser, &domain.PaymentRequest{
		Amount:     200,
		Date:       "2024-03-15",
		TargetKind: domain.KindLoan,
		TargetID:   "loan-1",
		Source:     domain.MethodBankAccount,
		SourceID:   "acc-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.LoanID != "loan-1" {
		t.Errorf("expected loan id on transaction, got %+v", tx)
	}
	loan := store.loans["loan-1"]
	if loan.Balance != 0 {
		t.Errorf("expected loan balance 0, got %v", loan.Balance)
	}
	if loan.IsActive {
		t.Error("expected a paid-off loan to deactivate")
	}
}

func TestPostExpense_SurfacesActivityWriteFailure(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 100, Revision: 1}
	store.failAppendActivity = true
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          40,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodBankAccount,
		PaymentMethodID: "acc-1",
	})
	if err == nil {
		t.Fatal("expected an error when the audit record cannot be written")
	}

	// The balance and transaction writes stand; only durability of the
	// audit trail is reported back.
	if got := store.accounts["acc-1"].Balance; got != 60 {
		t.Errorf("expected balance 60 to stand, got %v", got)
	}
	if len(store.txs) != 1 {
		t.Errorf("expected the transaction row to stand, got %d", len(store.txs))
	}
	if len(store.activity) != 0 {
		t.Errorf("no activity should be recorded, got %d", len(store.activity))
	}
}

func TestPostExpense_RejectsSubCentAmount(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 100, Revision: 1}
	svc := newLedgerService(store)

	_, err := svc.PostExpense(context.Background(), testUser, &domain.ExpenseRequest{
		Amount:          0.004,
		Date:            "2024-03-10",
		PaymentMethod:   domain.MethodBankAccount,
		PaymentMethodID: "acc-1",
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error for a sub-cent amount, got %v", err)
	}
	if len(store.txs) != 0 {
		t.Errorf("no transaction should be stored, got %d", len(store.txs))
	}
	if got := store.accounts["acc-1"].Balance; got != 100 {
		t.Errorf("expected balance untouched at 100, got %v", got)
	}
}

func TestPostPayment_RejectsSubCentAmount(t *testing.T) {
	store := newFakeStore()
	store.accounts["acc-1"] = domain.BankAccount{ID: "acc-1", UserID: testUser, Name: "Checking", Balance: 100, Revision: 1}
	store.cards["card-1"] = domain.CreditCard{ID: "card-1", UserID: testUser, Name: "Visa", Balance: 50, Revision: 1}
	svc := newLedgerService(store)

	_, err := svc.PostPayment(context.Background(), testUser, &domain.PaymentRequest{
		Amount:     0.003,
		Date:       "2024-03-10",
		TargetKind: domain.KindCreditCard,
		TargetID:   "card-1",
		Source:     domain.MethodBankAccount,
		SourceID:   "acc-1",
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error for a sub-cent amount, got %v", err)
	}
}
