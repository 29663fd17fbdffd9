package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack-api/internal/domain"
)

var jan15 = time.Date(2024, 1, 15, 13, 45, 0, 0, time.UTC)

func TestDaysUntil(t *testing.T) {
	days, err := DaysUntil("2024-01-18", jan15)
	require.NoError(t, err)
	assert.Equal(t, 3, days)

	days, err = DaysUntil("2024-01-15", jan15)
	require.NoError(t, err)
	assert.Equal(t, 0, days)

	days, err = DaysUntil("2024-01-10", jan15)
	require.NoError(t, err)
	assert.Equal(t, -5, days)

	// calendar truncation: tomorrow is always 1 even late in the day.
	lateNight := time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)
	days, err = DaysUntil("2024-01-16", lateNight)
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	_, err = DaysUntil("not-a-date", jan15)
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)
}

func TestNextDate(t *testing.T) {
	cases := []struct {
		freq domain.Frequency
		want string
	}{
		{domain.FreqWeekly, "2024-01-22"},
		{domain.FreqBiweekly, "2024-01-29"},
		{domain.FreqMonthly, "2024-02-15"},
		{domain.FreqBimonthly, "2024-03-15"},
		{domain.Frequency("unknown"), "2024-02-15"}, // defaults to monthly
	}
	for _, tc := range cases {
		got, err := NextDate("2024-01-15", tc.freq)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "frequency %s", tc.freq)
	}

	got, err := NextDate("2024-01-15", domain.FreqOnetime)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", got)
}

func TestNextDateMonthEndRollover(t *testing.T) {
	got, err := NextDate("2024-01-31", domain.FreqMonthly)
	require.NoError(t, err)
	// Go's AddDate normalizes Jan 31 + 1 month to Mar 2 in a leap year.
	assert.Equal(t, "2024-03-02", got)
}

func TestExhausted(t *testing.T) {
	assert.False(t, Exhausted(domain.DurationIndefinite, "", 100, 0, "2030-01-01"))
	assert.False(t, Exhausted(domain.DurationOccurrences, "", 2, 3, ""))
	assert.True(t, Exhausted(domain.DurationOccurrences, "", 3, 3, ""))
	assert.False(t, Exhausted(domain.DurationUntilDate, "2024-06-01", 0, 0, "2024-05-15"))
	assert.True(t, Exhausted(domain.DurationUntilDate, "2024-06-01", 0, 0, "2024-06-02"))
}

func TestUpcoming(t *testing.T) {
	in := Inputs{
		Cards: []domain.CreditCard{
			{ID: "c1", Name: "Visa", Balance: 500, PaymentAmount: 100, DueDate: "2024-01-17"},
			{ID: "c2", Name: "Paid off", Balance: 0, DueDate: "2024-01-16"},
			{ID: "c3", Name: "Gift", Balance: 50, IsGiftCard: true, DueDate: "2024-01-16"},
			{ID: "c4", Name: "Overdue", Balance: 200, DueDate: "2024-01-10"},
		},
		Loans: []domain.Loan{
			{ID: "l1", Name: "Car", Balance: 8000, PaymentAmount: 250, NextPaymentDate: "2024-02-10", IsActive: true},
			{ID: "l2", Name: "Closed", Balance: 0, NextPaymentDate: "2024-01-20", IsActive: false},
		},
		Funds: []domain.ReservedFund{
			{ID: "f1", Name: "Insurance", Amount: 300, DueDate: "2024-01-16"},
			{ID: "f2", Name: "Far out", Amount: 100, DueDate: "2024-06-01"},
		},
		Settings: domain.AlertSettings{UrgentWindow: 3, UpcomingWindow: 30},
		Today:    jan15,
	}

	got := Upcoming(in)
	require.Len(t, got, 3)

	// sorted ascending by days
	assert.Equal(t, "f1", got[0].ID)
	assert.Equal(t, 1, got[0].Days)
	assert.True(t, got[0].Urgent)

	assert.Equal(t, "c1", got[1].ID)
	assert.Equal(t, 2, got[1].Days)
	assert.True(t, got[1].Urgent)

	assert.Equal(t, "l1", got[2].ID)
	assert.Equal(t, 26, got[2].Days)
	assert.False(t, got[2].Urgent)
}

func TestUpcomingIgnoresPerEntityAlertDays(t *testing.T) {
	// AlertDays on the card says 60, but only the global windows apply:
	// a card due in 40 days is outside the 30-day upcoming window.
	in := Inputs{
		Cards: []domain.CreditCard{
			{ID: "c1", Name: "Visa", Balance: 100, DueDate: "2024-02-24", AlertDays: 60},
		},
		Settings: domain.AlertSettings{UrgentWindow: 3, UpcomingWindow: 30},
		Today:    jan15,
	}
	assert.Empty(t, Upcoming(in))
}
