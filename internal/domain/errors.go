package domain

import "fmt"

// Error types for consistent error handling across the backend.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInsufficientFunds indicates a balance mutation would breach the
// source's floor (zero, or the negative overdraft limit for accounts
// that allow it).
type ErrInsufficientFunds struct {
	Available      float64
	OverdraftLimit float64
	Required       float64
}

func (e *ErrInsufficientFunds) Error() string {
	if e.OverdraftLimit > 0 {
		return fmt.Sprintf("insufficient funds: available=%.2f overdraft_limit=%.2f required=%.2f",
			e.Available, e.OverdraftLimit, e.Required)
	}
	return fmt.Sprintf("insufficient funds: available=%.2f required=%.2f", e.Available, e.Required)
}

// ErrOverpayment indicates a payment exceeds the outstanding debt and
// the caller did not opt in to overpaying.
type ErrOverpayment struct {
	Outstanding float64
	Requested   float64
}

func (e *ErrOverpayment) Error() string {
	return fmt.Sprintf("payment exceeds outstanding debt: outstanding=%.2f requested=%.2f",
		e.Outstanding, e.Requested)
}

// ErrNotAuthenticated indicates a missing or invalid access token.
type ErrNotAuthenticated struct {
	Message string
}

func (e *ErrNotAuthenticated) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "not authenticated"
}

// ErrConflict indicates a concurrent write beat this one (stale
// revision) or a uniqueness violation.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrAlreadyUndone indicates a reversal was attempted on a transaction
// that is not active.
type ErrAlreadyUndone struct {
	TransactionID string
}

func (e *ErrAlreadyUndone) Error() string {
	return fmt.Sprintf("transaction already undone: %s", e.TransactionID)
}
