package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fintrack/fintrack-api/internal/domain"
)

// fakeStore is an in-memory LedgerStore for service tests. It enforces
// the same conditional-write semantics as the Supabase adapter:
// Update* with a stale revision returns ErrConflict, and
// MarkTransactionUndone only flips an active transaction.
type fakeStore struct {
	mu sync.Mutex

	accounts  map[string]domain.BankAccount
	cards     map[string]domain.CreditCard
	loans     map[string]domain.Loan
	funds     map[string]domain.ReservedFund
	cash      *domain.CashPool
	txs       map[string]domain.Transaction
	activity  map[string]domain.ActivityRecord
	schedules map[string]domain.IncomeSchedule
	settings  *domain.AlertSettings

	nextID int

	// conflictsFor injects N spurious revision conflicts for an id
	// before the write goes through, simulating a concurrent writer.
	conflictsFor map[string]int

	failCreateTransaction bool
	failAppendActivity    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     map[string]domain.BankAccount{},
		cards:        map[string]domain.CreditCard{},
		loans:        map[string]domain.Loan{},
		funds:        map[string]domain.ReservedFund{},
		txs:          map[string]domain.Transaction{},
		activity:     map[string]domain.ActivityRecord{},
		schedules:    map[string]domain.IncomeSchedule{},
		conflictsFor: map[string]int{},
	}
}

func (f *fakeStore) genID() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

// injectConflict makes the next n conditional writes on id fail with a
// revision conflict while also bumping the stored revision, the way a
// real concurrent writer would.
func (f *fakeStore) injectConflict(id string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflictsFor[id] = n
}

func (f *fakeStore) takeConflict(id string) bool {
	if f.conflictsFor[id] > 0 {
		f.conflictsFor[id]--
		return true
	}
	return false
}

// --- Bank accounts ---

func (f *fakeStore) ListAccounts(_ context.Context, userID string) ([]domain.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.BankAccount{}
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAccount(_ context.Context, userID, id string) (*domain.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "bank account", ID: id}
	}
	return &a, nil
}

func (f *fakeStore) GetPrimaryAccount(_ context.Context, userID string) (*domain.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.UserID == userID && a.IsPrimary {
			a := a
			return &a, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "primary bank account", ID: userID}
}

func (f *fakeStore) CreateAccount(_ context.Context, acc *domain.BankAccount) (*domain.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc.ID == "" {
		acc.ID = f.genID()
	}
	acc.Revision = 1
	f.accounts[acc.ID] = *acc
	out := *acc
	return &out, nil
}

func (f *fakeStore) UpdateAccount(_ context.Context, acc *domain.BankAccount, fromRevision int) (*domain.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.accounts[acc.ID]
	if !ok || stored.UserID != acc.UserID {
		return nil, &domain.ErrNotFound{Resource: "bank account", ID: acc.ID}
	}
	if f.takeConflict(acc.ID) {
		stored.Revision++
		f.accounts[acc.ID] = stored
		return nil, &domain.ErrConflict{Message: "bank account modified concurrently"}
	}
	if stored.Revision != fromRevision {
		return nil, &domain.ErrConflict{Message: "bank account modified concurrently"}
	}
	updated := *acc
	updated.Revision = fromRevision + 1
	f.accounts[acc.ID] = updated
	out := updated
	return &out, nil
}

func (f *fakeStore) DeleteAccount(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	return nil
}

// --- Credit cards ---

func (f *fakeStore) ListCards(_ context.Context, userID string) ([]domain.CreditCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.CreditCard{}
	for _, c := range f.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCard(_ context.Context, userID, id string) (*domain.CreditCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok || c.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "credit card", ID: id}
	}
	return &c, nil
}

func (f *fakeStore) CreateCard(_ context.Context, card *domain.CreditCard) (*domain.CreditCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if card.ID == "" {
		card.ID = f.genID()
	}
	card.Revision = 1
	f.cards[card.ID] = *card
	out := *card
	return &out, nil
}

func (f *fakeStore) UpdateCard(_ context.Context, card *domain.CreditCard, fromRevision int) (*domain.CreditCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.cards[card.ID]
	if !ok || stored.UserID != card.UserID {
		return nil, &domain.ErrNotFound{Resource: "credit card", ID: card.ID}
	}
	if f.takeConflict(card.ID) {
		stored.Revision++
		f.cards[card.ID] = stored
		return nil, &domain.ErrConflict{Message: "credit card modified concurrently"}
	}
	if stored.Revision != fromRevision {
		return nil, &domain.ErrConflict{Message: "credit card modified concurrently"}
	}
	updated := *card
	updated.Revision = fromRevision + 1
	f.cards[card.ID] = updated
	out := updated
	return &out, nil
}

func (f *fakeStore) DeleteCard(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cards, id)
	return nil
}

// --- Loans ---

func (f *fakeStore) ListLoans(_ context.Context, userID string) ([]domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Loan{}
	for _, l := range f.loans {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) GetLoan(_ context.Context, userID, id string) (*domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if !ok || l.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "loan", ID: id}
	}
	return &l, nil
}

func (f *fakeStore) CreateLoan(_ context.Context, loan *domain.Loan) (*domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if loan.ID == "" {
		loan.ID = f.genID()
	}
	loan.Revision = 1
	f.loans[loan.ID] = *loan
	out := *loan
	return &out, nil
}

func (f *fakeStore) UpdateLoan(_ context.Context, loan *domain.Loan, fromRevision int) (*domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.loans[loan.ID]
	if !ok || stored.UserID != loan.UserID {
		return nil, &domain.ErrNotFound{Resource: "loan", ID: loan.ID}
	}
	if f.takeConflict(loan.ID) {
		stored.Revision++
		f.loans[loan.ID] = stored
		return nil, &domain.ErrConflict{Message: "loan modified concurrently"}
	}
	if stored.Revision != fromRevision {
		return nil, &domain.ErrConflict{Message: "loan modified concurrently"}
	}
	updated := *loan
	updated.Revision = fromRevision + 1
	f.loans[loan.ID] = updated
	out := updated
	return &out, nil
}

func (f *fakeStore) DeleteLoan(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.loans, id)
	return nil
}

// --- Reserved funds ---

func (f *fakeStore) ListFunds(_ context.Context, userID string) ([]domain.ReservedFund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ReservedFund{}
	for _, fd := range f.funds {
		if fd.UserID == userID {
			out = append(out, fd)
		}
	}
	return out, nil
}

func (f *fakeStore) GetFund(_ context.Context, userID, id string) (*domain.ReservedFund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.funds[id]
	if !ok || fd.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "reserved fund", ID: id}
	}
	return &fd, nil
}

func (f *fakeStore) CreateFund(_ context.Context, fund *domain.ReservedFund) (*domain.ReservedFund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fund.ID == "" {
		fund.ID = f.genID()
	}
	fund.Revision = 1
	f.funds[fund.ID] = *fund
	out := *fund
	return &out, nil
}

func (f *fakeStore) UpdateFund(_ context.Context, fund *domain.ReservedFund, fromRevision int) (*domain.ReservedFund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.funds[fund.ID]
	if !ok || stored.UserID != fund.UserID {
		return nil, &domain.ErrNotFound{Resource: "reserved fund", ID: fund.ID}
	}
	if f.takeConflict(fund.ID) {
		stored.Revision++
		f.funds[fund.ID] = stored
		return nil, &domain.ErrConflict{Message: "reserved fund modified concurrently"}
	}
	if stored.Revision != fromRevision {
		return nil, &domain.ErrConflict{Message: "reserved fund modified concurrently"}
	}
	updated := *fund
	updated.Revision = fromRevision + 1
	f.funds[fund.ID] = updated
	out := updated
	return &out, nil
}

func (f *fakeStore) DeleteFund(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.funds, id)
	return nil
}

// --- Cash pool ---

func (f *fakeStore) GetCashPool(_ context.Context, userID string) (*domain.CashPool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cash == nil {
		f.cash = &domain.CashPool{ID: f.genID(), UserID: userID, Revision: 1}
	}
	out := *f.cash
	return &out, nil
}

func (f *fakeStore) UpdateCashPool(_ context.Context, pool *domain.CashPool, fromRevision int) (*domain.CashPool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cash == nil {
		return nil, &domain.ErrNotFound{Resource: "cash pool", ID: pool.ID}
	}
	if f.takeConflict(f.cash.ID) {
		f.cash.Revision++
		return nil, &domain.ErrConflict{Message: "cash pool modified concurrently"}
	}
	if f.cash.Revision != fromRevision {
		return nil, &domain.ErrConflict{Message: "cash pool modified concurrently"}
	}
	updated := *pool
	updated.Revision = fromRevision + 1
	f.cash = &updated
	out := updated
	return &out, nil
}

// --- Transactions ---

func (f *fakeStore) ListTransactions(_ context.Context, userID string, page, pageSize int) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Transaction{}
	for _, tx := range f.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTransaction(_ context.Context, userID, id string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok || tx.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return &tx, nil
}

func (f *fakeStore) CreateTransaction(_ context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateTransaction {
		return nil, &domain.ErrExternalService{Service: "supabase/transactions", Err: fmt.Errorf("injected failure")}
	}
	if tx.ID == "" {
		tx.ID = f.genID()
	}
	if tx.Status == "" {
		tx.Status = domain.TxActive
	}
	f.txs[tx.ID] = *tx
	out := *tx
	return &out, nil
}

func (f *fakeStore) MarkTransactionUndone(_ context.Context, userID, id string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok || tx.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	if tx.Status != domain.TxActive {
		return nil, &domain.ErrAlreadyUndone{TransactionID: id}
	}
	now := time.Now().UTC()
	tx.Status = domain.TxUndone
	tx.UndoneAt = &now
	f.txs[id] = tx
	out := tx
	return &out, nil
}

func (f *fakeStore) DeleteTransaction(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.txs, id)
	return nil
}

// --- Activity log ---

func (f *fakeStore) ListActivity(_ context.Context, userID string, page, pageSize int) ([]domain.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ActivityRecord{}
	for _, rec := range f.activity {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) GetActivity(_ context.Context, userID, id string) (*domain.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.activity[id]
	if !ok || rec.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "activity record", ID: id}
	}
	return &rec, nil
}

func (f *fakeStore) AppendActivity(_ context.Context, rec *domain.ActivityRecord) (*domain.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppendActivity {
		return nil, &domain.ErrExternalService{Service: "supabase/activity", Err: fmt.Errorf("injected failure")}
	}
	if rec.ID == "" {
		rec.ID = f.genID()
	}
	f.activity[rec.ID] = *rec
	out := *rec
	return &out, nil
}

func (f *fakeStore) GetActivityByTransaction(_ context.Context, userID, txID string) (*domain.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.activity {
		if rec.UserID == userID && rec.Snapshot.TransactionID == txID {
			rec := rec
			return &rec, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "activity record", ID: txID}
}

func (f *fakeStore) DeleteActivity(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.activity, id)
	return nil
}

// --- Income schedules ---

func (f *fakeStore) ListSchedules(_ context.Context, userID string) ([]domain.IncomeSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.IncomeSchedule{}
	for _, s := range f.schedules {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSchedule(_ context.Context, userID, id string) (*domain.IncomeSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok || s.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "income schedule", ID: id}
	}
	return &s, nil
}

func (f *fakeStore) CreateSchedule(_ context.Context, sched *domain.IncomeSchedule) (*domain.IncomeSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sched.ID == "" {
		sched.ID = f.genID()
	}
	sched.Revision = 1
	f.schedules[sched.ID] = *sched
	out := *sched
	return &out, nil
}

func (f *fakeStore) UpdateSchedule(_ context.Context, sched *domain.IncomeSchedule, fromRevision int) (*domain.IncomeSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.schedules[sched.ID]
	if !ok || stored.UserID != sched.UserID {
		return nil, &domain.ErrNotFound{Resource: "income schedule", ID: sched.ID}
	}
	if f.takeConflict(sched.ID) {
		stored.Revision++
		f.schedules[sched.ID] = stored
		return nil, &domain.ErrConflict{Message: "income schedule modified concurrently"}
	}
	if stored.Revision != fromRevision {
		return nil, &domain.ErrConflict{Message: "income schedule modified concurrently"}
	}
	updated := *sched
	updated.Revision = fromRevision + 1
	f.schedules[sched.ID] = updated
	out := updated
	return &out, nil
}

func (f *fakeStore) DeleteSchedule(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.schedules, id)
	return nil
}

// --- Alert settings ---

func (f *fakeStore) GetAlertSettings(_ context.Context, userID string) (*domain.AlertSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settings == nil {
		f.settings = &domain.AlertSettings{
			ID: f.genID(), UserID: userID,
			UrgentWindow: 3, UpcomingWindow: 30,
			Revision: 1,
		}
	}
	out := *f.settings
	return &out, nil
}

func (f *fakeStore) UpdateAlertSettings(_ context.Context, settings *domain.AlertSettings, fromRevision int) (*domain.AlertSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settings == nil || f.settings.Revision != fromRevision {
		return nil, &domain.ErrConflict{Message: "alert settings modified concurrently"}
	}
	updated := *settings
	updated.Revision = fromRevision + 1
	f.settings = &updated
	out := updated
	return &out, nil
}
