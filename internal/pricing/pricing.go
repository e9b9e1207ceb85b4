package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/libris/borrow-service/internal/model"
)

// FineMultiplier scales the daily fee for every day past the expected
// return date.
var FineMultiplier = decimal.NewFromInt(2)

// RentalAmount is the charge for the planned borrowing period,
// independent of when the book actually comes back.
func RentalAmount(borrowDate, expectedReturnDate model.Date, dailyFee decimal.Decimal) decimal.Decimal {
	days := borrowDate.Days(expectedReturnDate)
	if days < 0 {
		days = 0
	}
	return dailyFee.Mul(decimal.NewFromInt(int64(days)))
}

// FineAmount is the late-return charge. Zero when the return is on time;
// lifecycle preconditions keep negative ranges unreachable.
func FineAmount(expectedReturnDate, actualReturnDate model.Date, dailyFee decimal.Decimal) decimal.Decimal {
	days := expectedReturnDate.Days(actualReturnDate)
	if days < 0 {
		days = 0
	}
	return dailyFee.Mul(decimal.NewFromInt(int64(days))).Mul(FineMultiplier)
}

// PaymentAmount recomputes what a payment is worth from its borrowing's
// dates. Amounts are never stored, so this is the single source of truth.
func PaymentAmount(typ model.PaymentType, b model.Borrowing, dailyFee decimal.Decimal) decimal.Decimal {
	if typ == model.TypeFine {
		if b.ActualReturnDate == nil {
			return decimal.Zero
		}
		return FineAmount(b.ExpectedReturnDate, *b.ActualReturnDate, dailyFee)
	}
	return RentalAmount(b.BorrowDate, b.ExpectedReturnDate, dailyFee)
}

// Cents converts an amount to the provider's smallest currency unit.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}
