package pricing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/libris/borrow-service/internal/model"
	"github.com/libris/borrow-service/internal/pricing"
)

func TestRentalAmount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		borrow   model.Date
		expected model.Date
		fee      decimal.Decimal
		want     string
	}{
		{
			name:     "five days at 2.00",
			borrow:   model.NewDate(2023, time.April, 25),
			expected: model.NewDate(2023, time.April, 30),
			fee:      decimal.RequireFromString("2.00"),
			want:     "10.00",
		},
		{
			name:     "same day is free",
			borrow:   model.NewDate(2023, time.April, 25),
			expected: model.NewDate(2023, time.April, 25),
			fee:      decimal.RequireFromString("2.00"),
			want:     "0.00",
		},
		{
			name:     "negative range clamps to zero",
			borrow:   model.NewDate(2023, time.April, 25),
			expected: model.NewDate(2023, time.April, 20),
			fee:      decimal.RequireFromString("2.00"),
			want:     "0.00",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pricing.RentalAmount(tt.borrow, tt.expected, tt.fee)
			require.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got, tt.want)
		})
	}
}

func TestFineAmount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		expected model.Date
		actual   model.Date
		fee      decimal.Decimal
		want     string
	}{
		{
			name:     "three days late at 1.99 doubles",
			expected: model.NewDate(2023, time.April, 30),
			actual:   model.NewDate(2023, time.May, 3),
			fee:      decimal.RequireFromString("1.99"),
			want:     "11.94",
		},
		{
			name:     "on time is zero",
			expected: model.NewDate(2023, time.April, 30),
			actual:   model.NewDate(2023, time.April, 30),
			fee:      decimal.RequireFromString("1.99"),
			want:     "0",
		},
		{
			name:     "early return clamps to zero",
			expected: model.NewDate(2023, time.April, 30),
			actual:   model.NewDate(2023, time.April, 28),
			fee:      decimal.RequireFromString("1.99"),
			want:     "0",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pricing.FineAmount(tt.expected, tt.actual, tt.fee)
			require.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got, tt.want)
		})
	}
}

func TestPaymentAmount(t *testing.T) {
	t.Parallel()
	fee := decimal.RequireFromString("1.99")
	late := model.NewDate(2023, time.May, 3)
	b := model.Borrowing{
		BorrowDate:         model.NewDate(2023, time.April, 25),
		ExpectedReturnDate: model.NewDate(2023, time.April, 30),
	}

	require.Equal(t, "9.95", pricing.PaymentAmount(model.TypePayment, b, fee).String())

	// fine is undefined while the borrowing is open
	require.True(t, pricing.PaymentAmount(model.TypeFine, b, fee).IsZero())

	b.ActualReturnDate = &late
	require.Equal(t, "11.94", pricing.PaymentAmount(model.TypeFine, b, fee).String())
	// rental does not depend on the actual return date
	require.Equal(t, "9.95", pricing.PaymentAmount(model.TypePayment, b, fee).String())
}

func TestCents(t *testing.T) {
	t.Parallel()
	require.EqualValues(t, 1194, pricing.Cents(decimal.RequireFromString("11.94")))
	require.EqualValues(t, 1000, pricing.Cents(decimal.RequireFromString("10.00")))
	require.EqualValues(t, 0, pricing.Cents(decimal.Zero))
}
