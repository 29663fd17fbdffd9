// Package domain defines the core business entities for fintrack.
// These models are independent of external services and represent the
// canonical data structures used throughout the backend.
package domain

import "time"

// ============================================================
// Monetary entity kinds
// ============================================================

// EntityKind identifies the kind of a monetary entity. It is a closed
// enum: every switch over it must handle all values and reject unknowns.
type EntityKind string

const (
	KindBankAccount  EntityKind = "bank_account"
	KindCreditCard   EntityKind = "credit_card"
	KindLoan         EntityKind = "loan"
	KindReservedFund EntityKind = "reserved_fund"
	KindCashInHand   EntityKind = "cash_in_hand"
)

// PaymentMethod identifies what funded (expense/payment) or received
// (income) an amount. Same closed-enum rules as EntityKind.
type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodBankAccount  PaymentMethod = "bank_account"
	MethodCashInHand   PaymentMethod = "cash_in_hand"
	MethodReservedFund PaymentMethod = "reserved_fund"
)

// TransactionType is the kind of ledger entry.
type TransactionType string

const (
	TxExpense TransactionType = "expense"
	TxIncome  TransactionType = "income"
	TxPayment TransactionType = "payment"
)

// Frequency of a recurring obligation or income schedule.
type Frequency string

const (
	FreqWeekly    Frequency = "weekly"
	FreqBiweekly  Frequency = "biweekly"
	FreqMonthly   Frequency = "monthly"
	FreqBimonthly Frequency = "bimonthly"
	FreqOnetime   Frequency = "onetime"
)

// DurationType governs how a recurring schedule terminates.
type DurationType string

const (
	DurationIndefinite  DurationType = "indefinite"
	DurationUntilDate   DurationType = "until_date"
	DurationOccurrences DurationType = "occurrences"
)

// ============================================================
// Bank accounts
// ============================================================

// BankAccount holds funds available to the user. Balance may go
// negative only when overdraft is allowed and within the limit.
type BankAccount struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Balance         float64   `json:"balance"`
	AllowsOverdraft bool      `json:"allows_overdraft"`
	OverdraftLimit  float64   `json:"overdraft_limit"`
	IsPrimary       bool      `json:"is_primary"`
	Revision        int       `json:"revision"`
	CreatedAt       time.Time `json:"created_at"`
}

// ============================================================
// Credit cards
// ============================================================

// CreditCard tracks debt owed, or stored value when IsGiftCard is set
// (gift cards invert the sign convention: balance decreases on use).
type CreditCard struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	Name                string    `json:"name"`
	Balance             float64   `json:"balance"`
	IsGiftCard          bool      `json:"is_gift_card"`
	PaymentAmount       float64   `json:"payment_amount"`
	DueDate             string    `json:"due_date,omitempty"` // YYYY-MM-DD
	Frequency           Frequency `json:"frequency,omitempty"`
	AlertDays           int       `json:"alert_days,omitempty"`
	LastAutoPaymentDate string    `json:"last_auto_payment_date,omitempty"`
	Revision            int       `json:"revision"`
	CreatedAt           time.Time `json:"created_at"`
}

// ============================================================
// Loans
// ============================================================

// Loan tracks principal remaining, paid down by payment postings.
type Loan struct {
	ID                  string       `json:"id"`
	UserID              string       `json:"user_id"`
	Name                string       `json:"name"`
	Balance             float64      `json:"balance"`
	PaymentAmount       float64      `json:"payment_amount"`
	NextPaymentDate     string       `json:"next_payment_date,omitempty"` // YYYY-MM-DD
	Frequency           Frequency    `json:"frequency,omitempty"`
	AlertDays           int          `json:"alert_days,omitempty"`
	LastAutoPaymentDate string       `json:"last_auto_payment_date,omitempty"`
	RecurringDuration   DurationType `json:"recurring_duration_type,omitempty"`
	RecurringEndDate    string       `json:"recurring_end_date,omitempty"`
	MaxOccurrences      int          `json:"max_occurrences,omitempty"`
	OccurrenceCount     int          `json:"occurrence_count"`
	IsActive            bool         `json:"is_active"`
	Revision            int          `json:"revision"`
	CreatedAt           time.Time    `json:"created_at"`
}

// ============================================================
// Reserved funds
// ============================================================

// FundLink points a reserved fund at the card or loan it is set aside for.
type FundLink struct {
	Kind EntityKind `json:"kind"` // credit_card or loan
	ID   string     `json:"id"`
}

// ReservedFund is an amount set aside for a future obligation. A fund is
// either linked to at most one debt (LinkedTo) or is a lumpsum linked to
// several (IsLumpsum + LinkedItems, which must be non-empty).
type ReservedFund struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	Amount         float64    `json:"amount"`
	OriginalAmount float64    `json:"original_amount"`
	DueDate        string     `json:"due_date,omitempty"` // YYYY-MM-DD
	Recurring      bool       `json:"recurring"`
	Frequency      Frequency  `json:"frequency,omitempty"`
	LinkedTo       *FundLink  `json:"linked_to,omitempty"`
	IsLumpsum      bool       `json:"is_lumpsum"`
	LinkedItems    []FundLink `json:"linked_items,omitempty"`
	Revision       int        `json:"revision"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CoversObligation reports whether the fund is earmarked for the given
// card or loan, either directly or via lumpsum membership.
func (f *ReservedFund) CoversObligation(kind EntityKind, id string) bool {
	if f.IsLumpsum {
		for _, item := range f.LinkedItems {
			if item.Kind == kind && item.ID == id {
				return true
			}
		}
		return false
	}
	return f.LinkedTo != nil && f.LinkedTo.Kind == kind && f.LinkedTo.ID == id
}

// ============================================================
// Cash in hand
// ============================================================

// CashPool is the single cash-in-hand balance per user. It never
// overdrafts.
type CashPool struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   float64   `json:"balance"`
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================
// Transactions (the ledger)
// ============================================================

// TxActive and TxUndone are the two transaction statuses.
const (
	TxActive = "active"
	TxUndone = "undone"
)

// Transaction is an immutable-once-created ledger entry. The only
// permitted mutation is flipping Status to undone on reversal.
type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Type            TransactionType `json:"type"`
	Amount          float64         `json:"amount"`
	Date            string          `json:"date"` // YYYY-MM-DD, day granularity
	Description     string          `json:"description,omitempty"`
	CategoryID      string          `json:"category_id,omitempty"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	CardID          string          `json:"card_id,omitempty"`
	LoanID          string          `json:"loan_id,omitempty"`
	IncomeSource    string          `json:"income_source,omitempty"`
	Status          string          `json:"status"`
	UndoneAt        *time.Time      `json:"undone_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ============================================================
// Activity log
// ============================================================

// ActionType classifies an activity record.
type ActionType string

const (
	ActionAdd     ActionType = "add"
	ActionEdit    ActionType = "edit"
	ActionDelete  ActionType = "delete"
	ActionExpense ActionType = "expense"
	ActionIncome  ActionType = "income"
	ActionPayment ActionType = "payment"
)

// BalanceChange records one entity's balance before and after a mutation.
type BalanceChange struct {
	Kind     EntityKind `json:"kind"`
	EntityID string     `json:"entity_id,omitempty"`
	Before   float64    `json:"before"`
	After    float64    `json:"after"`
}

// ActivitySnapshot carries enough prior state to reverse the action.
// Balances are recorded before and after for each entity the action
// touched; PriorEntity holds the full previous record for edits/deletes.
type ActivitySnapshot struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	Balances      []BalanceChange `json:"balances,omitempty"`
	PriorEntity   map[string]any  `json:"prior_entity,omitempty"`
}

// ActivityRecord is an append-only audit/undo log entry. It is created
// right after a successful operation and deleted when that operation is
// reversed.
type ActivityRecord struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	ActionType  ActionType       `json:"action_type"`
	EntityType  string           `json:"entity_type"`
	EntityID    string           `json:"entity_id,omitempty"`
	EntityName  string           `json:"entity_name,omitempty"`
	Description string           `json:"description,omitempty"` // display only, never parsed back
	Snapshot    ActivitySnapshot `json:"snapshot"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ============================================================
// Income schedules
// ============================================================

// IncomeSchedule is a recurring income definition, distinct from the
// individual income occurrences it produces. Processing one occurrence
// yields one income transaction and advances NextDate; the schedule row
// itself is never duplicated.
type IncomeSchedule struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	Source            string        `json:"source"`
	Amount            float64       `json:"amount"`
	Frequency         Frequency     `json:"frequency"`
	NextDate          string        `json:"next_date"` // YYYY-MM-DD
	Destination       PaymentMethod `json:"destination"`
	DestinationID     string        `json:"destination_id,omitempty"`
	RecurringDuration DurationType  `json:"recurring_duration_type"`
	RecurringEndDate  string        `json:"recurring_end_date,omitempty"`
	MaxOccurrences    int           `json:"max_occurrences,omitempty"`
	OccurrenceCount   int           `json:"occurrence_count"`
	IsActive          bool          `json:"is_active"`
	Revision          int           `json:"revision"`
	CreatedAt         time.Time     `json:"created_at"`
}

// ============================================================
// Alert settings & obligations
// ============================================================

// AlertSettings are the global obligation windows. The aggregate
// upcoming-obligations view uses only these; per-entity AlertDays fields
// exist on cards and loans but are deliberately not consulted there.
type AlertSettings struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	UrgentWindow   int    `json:"urgent_window_days"`
	UpcomingWindow int    `json:"upcoming_window_days"`
	Revision       int    `json:"revision"`
}

// Obligation is one row in the upcoming-obligations view.
type Obligation struct {
	Kind    EntityKind `json:"kind"`
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Amount  float64    `json:"amount"`
	DueDate string     `json:"due_date"`
	Days    int        `json:"days"`
	Urgent  bool       `json:"urgent"`
}

// ============================================================
// Backup (export/import)
// ============================================================

// ExportDocument is the full-state backup: arrays of every entity kind
// plus available cash and the alert settings. Import replays a put for
// every record; last value wins per id.
type ExportDocument struct {
	ExportedAt    time.Time        `json:"exported_at"`
	Accounts      []BankAccount    `json:"accounts"`
	Cards         []CreditCard     `json:"cards"`
	Loans         []Loan           `json:"loans"`
	Funds         []ReservedFund   `json:"funds"`
	Transactions  []Transaction    `json:"transactions"`
	Activity      []ActivityRecord `json:"activity"`
	Schedules     []IncomeSchedule `json:"schedules"`
	AvailableCash float64          `json:"available_cash"`
	AlertSettings *AlertSettings   `json:"alert_settings,omitempty"`
}

// ============================================================
// Request / response payloads (API contract)
// ============================================================

// ExpenseRequest is the body for POST /v1/ledger/expenses.
type ExpenseRequest struct {
	Amount          float64       `json:"amount"`
	Date            string        `json:"date"`
	Description     string        `json:"description,omitempty"`
	CategoryID      string        `json:"category_id,omitempty"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	PaymentMethodID string        `json:"payment_method_id,omitempty"`
}

// IncomeRequest is the body for POST /v1/ledger/incomes.
type IncomeRequest struct {
	Amount            float64       `json:"amount"`
	Date              string        `json:"date"`
	Source            string        `json:"source"`
	Destination       PaymentMethod `json:"destination"`
	DestinationID     string        `json:"destination_id,omitempty"`
	Frequency         Frequency     `json:"frequency,omitempty"`
	RecurringDuration DurationType  `json:"recurring_duration_type,omitempty"`
	RecurringEndDate  string        `json:"recurring_end_date,omitempty"`
	MaxOccurrences    int           `json:"max_occurrences,omitempty"`
}

// PaymentRequest is the body for POST /v1/ledger/payments.
type PaymentRequest struct {
	Amount           float64       `json:"amount"`
	Date             string        `json:"date"`
	TargetKind       EntityKind    `json:"target_kind"` // credit_card or loan
	TargetID         string        `json:"target_id"`
	Source           PaymentMethod `json:"source"`
	SourceID         string        `json:"source_id,omitempty"`
	AllowOverpayment bool          `json:"allow_overpayment,omitempty"`
}

// CashAdjustRequest is the body for POST /v1/cash/adjust.
type CashAdjustRequest struct {
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason,omitempty"`
}

// AutoPayResult summarises one auto-pay run.
type AutoPayResult struct {
	Paid    []Obligation `json:"paid"`
	Skipped []Obligation `json:"skipped"`
}

// ScheduleRunResult summarises one income-schedule processing run.
type ScheduleRunResult struct {
	Processed []Transaction `json:"processed"`
}

// ImportResult reports how many records an import wrote.
type ImportResult struct {
	Imported int `json:"imported"`
}

// IncomeResult is the response for an income posting: a one-off income
// yields just the transaction, a recurring one also yields the schedule
// registered for future occurrences.
type IncomeResult struct {
	Transaction *Transaction    `json:"transaction,omitempty"`
	Schedule    *IncomeSchedule `json:"schedule,omitempty"`
}

// LedgerMetrics is the snapshot served by GET /v1/metrics/ledger.
type LedgerMetrics struct {
	ExpensesPosted   int64   `json:"expenses_posted"`
	IncomesPosted    int64   `json:"incomes_posted"`
	PaymentsPosted   int64   `json:"payments_posted"`
	FullReversals    int64   `json:"full_reversals"`
	PartialReversals int64   `json:"partial_reversals"`
	ReversalRate     float64 `json:"reversal_rate"`
	AutopayPaid      int64   `json:"autopay_paid"`
	AutopaySkipped   int64   `json:"autopay_skipped"`
	Period           string  `json:"period"`
}
