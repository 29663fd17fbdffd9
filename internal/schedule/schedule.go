// Package schedule projects due dates and recurring obligations:
// day-distance math, next-occurrence prediction, and the upcoming
// obligations view consumed by auto-pay and the dashboard.
package schedule

import (
	"sort"
	"time"

	"github.com/fintrack/fintrack-api/internal/domain"
)

// DateLayout is the wire format for all calendar dates.
const DateLayout = "2006-01-02"

// truncate drops the time component, leaving a calendar day in UTC.
func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the whole-day distance from today to date. Negative
// means overdue. Comparison is calendar-day truncation, not elapsed
// hours, so "tomorrow" is always 1 regardless of the current time.
func DaysUntil(date string, today time.Time) (int, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, &domain.ErrValidation{Field: "date", Message: "must be YYYY-MM-DD"}
	}
	return int(truncate(d).Sub(truncate(today)).Hours() / 24), nil
}

// NextDate advances lastDate by one frequency step. Weekly and biweekly
// are fixed 7/14-day offsets; monthly and bimonthly use calendar-month
// arithmetic. Unrecognized frequencies fall back to monthly, matching
// the projector's historical default.
func NextDate(lastDate string, freq domain.Frequency) (string, error) {
	d, err := time.Parse(DateLayout, lastDate)
	if err != nil {
		return "", &domain.ErrValidation{Field: "date", Message: "must be YYYY-MM-DD"}
	}
	switch freq {
	case domain.FreqWeekly:
		d = d.AddDate(0, 0, 7)
	case domain.FreqBiweekly:
		d = d.AddDate(0, 0, 14)
	case domain.FreqMonthly:
		d = d.AddDate(0, 1, 0)
	case domain.FreqBimonthly:
		d = d.AddDate(0, 2, 0)
	case domain.FreqOnetime:
		return lastDate, nil
	default:
		d = d.AddDate(0, 1, 0)
	}
	return d.Format(DateLayout), nil
}

// ValidFrequency reports whether f is one of the known frequency tags.
func ValidFrequency(f domain.Frequency) bool {
	switch f {
	case domain.FreqWeekly, domain.FreqBiweekly, domain.FreqMonthly, domain.FreqBimonthly, domain.FreqOnetime:
		return true
	}
	return false
}

// Exhausted reports whether a recurring schedule has run its course
// after the occurrence that just happened on occurrenceDate.
func Exhausted(dur domain.DurationType, endDate string, occurrences, maxOccurrences int, nextDate string) bool {
	switch dur {
	case domain.DurationIndefinite, "":
		return false
	case domain.DurationOccurrences:
		return maxOccurrences > 0 && occurrences >= maxOccurrences
	case domain.DurationUntilDate:
		if endDate == "" {
			return false
		}
		end, err := time.Parse(DateLayout, endDate)
		if err != nil {
			return false
		}
		next, err := time.Parse(DateLayout, nextDate)
		if err != nil {
			return false
		}
		return next.After(end)
	}
	return false
}

// Inputs for the upcoming-obligations view.
type Inputs struct {
	Cards    []domain.CreditCard
	Loans    []domain.Loan
	Funds    []domain.ReservedFund
	Settings domain.AlertSettings
	Today    time.Time
}

// Upcoming unions due credit cards (balance > 0), active loans, and
// reserved funds into one list. Only the global urgent/upcoming windows
// apply; the per-entity AlertDays fields are intentionally not consulted
// here. Overdue rows (days < 0) are excluded; the result is sorted by
// days ascending.
func Upcoming(in Inputs) []domain.Obligation {
	out := make([]domain.Obligation, 0)

	add := func(kind domain.EntityKind, id, name string, amount float64, due string) {
		if due == "" {
			return
		}
		days, err := DaysUntil(due, in.Today)
		if err != nil || days < 0 {
			return
		}
		urgent := days <= in.Settings.UrgentWindow
		if !urgent && days > in.Settings.UpcomingWindow {
			return
		}
		out = append(out, domain.Obligation{
			Kind:    kind,
			ID:      id,
			Name:    name,
			Amount:  amount,
			DueDate: due,
			Days:    days,
			Urgent:  urgent,
		})
	}

	for _, c := range in.Cards {
		if c.IsGiftCard || c.Balance <= 0 {
			continue
		}
		amount := c.PaymentAmount
		if amount <= 0 || amount > c.Balance {
			amount = c.Balance
		}
		add(domain.KindCreditCard, c.ID, c.Name, amount, c.DueDate)
	}
	for _, l := range in.Loans {
		if !l.IsActive || l.Balance <= 0 {
			continue
		}
		amount := l.PaymentAmount
		if amount <= 0 || amount > l.Balance {
			amount = l.Balance
		}
		add(domain.KindLoan, l.ID, l.Name, amount, l.NextPaymentDate)
	}
	for _, f := range in.Funds {
		if f.Amount <= 0 {
			continue
		}
		add(domain.KindReservedFund, f.ID, f.Name, f.Amount, f.DueDate)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Days < out[j].Days })
	return out
}
