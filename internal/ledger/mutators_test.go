package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack-api/internal/domain"
)

func TestApplyAccountDelta(t *testing.T) {
	acc := &domain.BankAccount{Balance: 100}

	nb, err := ApplyAccountDelta(acc, -40)
	require.NoError(t, err)
	assert.Equal(t, 60.0, nb)

	// no overdraft: reject anything past zero, balance untouched
	nb, err = ApplyAccountDelta(acc, -150)
	var insufficient *domain.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 100.0, insufficient.Available)
	assert.Equal(t, 150.0, insufficient.Required)
	assert.Equal(t, 100.0, nb)
}

func TestApplyAccountDeltaOverdraft(t *testing.T) {
	acc := &domain.BankAccount{Balance: 100, AllowsOverdraft: true, OverdraftLimit: 50}

	nb, err := ApplyAccountDelta(acc, -150)
	require.NoError(t, err)
	assert.Equal(t, -50.0, nb)

	_, err = ApplyAccountDelta(acc, -150.01)
	var insufficient *domain.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 50.0, insufficient.OverdraftLimit)
}

func TestApplyAccountDeltaNegligibleIsNoop(t *testing.T) {
	acc := &domain.BankAccount{Balance: 100}
	nb, err := ApplyAccountDelta(acc, 0.004)
	require.NoError(t, err)
	assert.Equal(t, 100.0, nb)
}

func TestApplyCashDelta(t *testing.T) {
	pool := &domain.CashPool{Balance: 20}

	nb, err := ApplyCashDelta(pool, 30)
	require.NoError(t, err)
	assert.Equal(t, 50.0, nb)

	// cash never overdrafts
	_, err = ApplyCashDelta(pool, -20.01)
	var insufficient *domain.ErrInsufficientFunds
	assert.ErrorAs(t, err, &insufficient)
}

func TestApplyCardDeltaDebt(t *testing.T) {
	card := &domain.CreditCard{Balance: 0}

	nb, err := ApplyCardDelta(card, 50)
	require.NoError(t, err)
	assert.Equal(t, 50.0, nb)

	// payment past the debt floors at zero
	card.Balance = 50
	nb, err = ApplyCardDelta(card, -80)
	require.NoError(t, err)
	assert.Equal(t, 0.0, nb)
}

func TestApplyCardDeltaGift(t *testing.T) {
	gift := &domain.CreditCard{Balance: 50, IsGiftCard: true}

	// use decreases stored value
	nb, err := ApplyCardDelta(gift, -30)
	require.NoError(t, err)
	assert.Equal(t, 20.0, nb)

	// overspend is rejected, not floored
	_, err = ApplyCardDelta(gift, -60)
	var insufficient *domain.ErrInsufficientFunds
	assert.ErrorAs(t, err, &insufficient)

	// reload is uncapped
	nb, err = ApplyCardDelta(gift, 100)
	require.NoError(t, err)
	assert.Equal(t, 150.0, nb)
}

func TestGiftCardSignInversion(t *testing.T) {
	// identical expense delta magnitude, opposite direction per flag
	debt := &domain.CreditCard{Balance: 10}
	gift := &domain.CreditCard{Balance: 100, IsGiftCard: true}

	nb, err := ApplyCardDelta(debt, 25)
	require.NoError(t, err)
	assert.Equal(t, 35.0, nb)

	nb, err = ApplyCardDelta(gift, -25)
	require.NoError(t, err)
	assert.Equal(t, 75.0, nb)
}

func TestApplyLoanPayment(t *testing.T) {
	loan := &domain.Loan{Balance: 200}
	assert.Equal(t, 150.0, ApplyLoanPayment(loan, 50))

	// overpayment floors at zero
	assert.Equal(t, 0.0, ApplyLoanPayment(loan, 500))
}

func TestApplyFundPayment(t *testing.T) {
	fund := &domain.ReservedFund{Amount: 100, OriginalAmount: 100}

	res, err := ApplyFundPayment(fund, 40)
	require.NoError(t, err)
	assert.Equal(t, 60.0, res.Amount)
	assert.False(t, res.Renewed)

	_, err = ApplyFundPayment(fund, 150)
	var insufficient *domain.ErrInsufficientFunds
	assert.ErrorAs(t, err, &insufficient)
}

func TestApplyFundPaymentRecurringRenews(t *testing.T) {
	fund := &domain.ReservedFund{
		Amount:         100,
		OriginalAmount: 100,
		Recurring:      true,
		Frequency:      domain.FreqMonthly,
		DueDate:        "2024-01-15",
	}

	res, err := ApplyFundPayment(fund, 100)
	require.NoError(t, err)
	assert.True(t, res.Renewed)
	assert.Equal(t, 100.0, res.Amount)
	assert.Equal(t, "2024-02-15", res.DueDate)
}

func TestApplyFundPaymentNonRecurringDrains(t *testing.T) {
	fund := &domain.ReservedFund{Amount: 100, OriginalAmount: 100, DueDate: "2024-01-15"}

	res, err := ApplyFundPayment(fund, 100)
	require.NoError(t, err)
	assert.False(t, res.Renewed)
	assert.Equal(t, 0.0, res.Amount)
	assert.Equal(t, "2024-01-15", res.DueDate)
}

func TestRoundingAfterMutation(t *testing.T) {
	acc := &domain.BankAccount{Balance: 10.10}
	nb, err := ApplyAccountDelta(acc, -10.0999)
	require.NoError(t, err)
	assert.Equal(t, 0.0, nb)
}
