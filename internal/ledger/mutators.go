// Package ledger holds the pure balance mutators: given an entity and a
// signed delta, each returns the new balance (or mutated copy) after
// applying that entity kind's floor and overdraft policy. Nothing here
// persists; callers own the write.
package ledger

import (
	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/money"
	"github.com/fintrack/fintrack-api/internal/schedule"
)

// ApplyAccountDelta computes a bank account's new balance. A negative
// result is accepted only when the account allows overdraft and the
// result stays within the limit.
func ApplyAccountDelta(acc *domain.BankAccount, delta float64) (float64, error) {
	if money.Negligible(delta) {
		return acc.Balance, nil
	}
	nb := money.Normalize(money.Add(acc.Balance, delta))
	if money.Less(nb, 0) {
		if !acc.AllowsOverdraft || money.Greater(-nb, acc.OverdraftLimit) {
			return acc.Balance, &domain.ErrInsufficientFunds{
				Available:      acc.Balance,
				OverdraftLimit: overdraftLimit(acc),
				Required:       -delta,
			}
		}
	}
	return nb, nil
}

func overdraftLimit(acc *domain.BankAccount) float64 {
	if acc.AllowsOverdraft {
		return acc.OverdraftLimit
	}
	return 0
}

// ApplyCashDelta computes the cash pool's new balance. Cash never
// overdrafts.
func ApplyCashDelta(pool *domain.CashPool, delta float64) (float64, error) {
	if money.Negligible(delta) {
		return pool.Balance, nil
	}
	nb := money.Normalize(money.Add(pool.Balance, delta))
	if money.Less(nb, 0) {
		return pool.Balance, &domain.ErrInsufficientFunds{
			Available: pool.Balance,
			Required:  -delta,
		}
	}
	return nb, nil
}

// ApplyCardDelta computes a credit card's new balance.
//
// Non-gift cards carry debt: a positive delta (expense) is uncapped, a
// negative delta (payment) floors at zero so overpayment never drives
// debt negative.
//
// Gift cards carry stored value: a negative delta (use) is rejected if
// it exceeds the stored value, a positive delta (reload) is uncapped.
func ApplyCardDelta(card *domain.CreditCard, delta float64) (float64, error) {
	if money.Negligible(delta) {
		return card.Balance, nil
	}
	nb := money.Normalize(money.Add(card.Balance, delta))
	if card.IsGiftCard {
		if money.Less(nb, 0) {
			return card.Balance, &domain.ErrInsufficientFunds{
				Available: card.Balance,
				Required:  -delta,
			}
		}
		return nb, nil
	}
	if money.Less(nb, 0) {
		nb = 0
	}
	return nb, nil
}

// ApplyLoanPayment computes a loan's new principal after a payment,
// floored at zero.
func ApplyLoanPayment(loan *domain.Loan, amount float64) float64 {
	if money.Negligible(amount) {
		return loan.Balance
	}
	nb := money.Normalize(money.Sub(loan.Balance, amount))
	if money.Less(nb, 0) {
		nb = 0
	}
	return nb
}

// FundApplication is the result of drawing a reserved fund down for a
// payment.
type FundApplication struct {
	Amount  float64 // new fund amount
	DueDate string  // possibly advanced
	Renewed bool    // recurring fund fully drained and reset
}

// ApplyFundPayment draws amount from a reserved fund, floored at zero.
// Drawing more than is set aside is rejected. When a recurring fund is
// fully drained the fund renews: amount resets to OriginalAmount and
// the due date advances one frequency step.
func ApplyFundPayment(fund *domain.ReservedFund, amount float64) (FundApplication, error) {
	res := FundApplication{Amount: fund.Amount, DueDate: fund.DueDate}
	if money.Negligible(amount) {
		return res, nil
	}
	nb := money.Normalize(money.Sub(fund.Amount, amount))
	if money.Less(nb, 0) {
		return res, &domain.ErrInsufficientFunds{
			Available: fund.Amount,
			Required:  amount,
		}
	}
	res.Amount = nb
	if nb == 0 && fund.Recurring && fund.DueDate != "" {
		next, err := schedule.NextDate(fund.DueDate, fund.Frequency)
		if err == nil {
			res.Amount = money.Round2(fund.OriginalAmount)
			res.DueDate = next
			res.Renewed = true
		}
	}
	return res, nil
}
