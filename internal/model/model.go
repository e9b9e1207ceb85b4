package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CoverType string

const (
	CoverHard CoverType = "HARD"
	CoverSoft CoverType = "SOFT"
)

type PaymentType string

const (
	TypePayment PaymentType = "PAYMENT"
	TypeFine    PaymentType = "FINE"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusPaid    PaymentStatus = "PAID"
)

// Date is a day-granular timestamp serialized as 2006-01-02.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func Today() Date {
	y, m, d := time.Now().UTC().Date()
	return NewDate(y, m, d)
}

func (d *Date) UnmarshalJSON(b []byte) (err error) {
	s := strings.Trim(string(b), "\"")
	date, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = date
	return
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

func (d *Date) Scan(src any) error {
	t, ok := src.(time.Time)
	if !ok {
		return fmt.Errorf("scan Date: unsupported type %T", src)
	}
	d.Time = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

// Days returns the whole-day difference other - d.
func (d Date) Days(other Date) int {
	return int(other.Sub(d.Time) / (24 * time.Hour))
}

type Book struct {
	ID        int             `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	Author    string          `json:"author" db:"author"`
	Cover     CoverType       `json:"cover" db:"cover"`
	Inventory int             `json:"inventory" db:"inventory"`
	DailyFee  decimal.Decimal `json:"dailyFee" db:"daily_fee"`
}

type Borrowing struct {
	ID                 int    `json:"id" db:"id"`
	Username           string `json:"username" db:"username"`
	BookID             int    `json:"bookId" db:"book_id"`
	BorrowDate         Date   `json:"borrowDate"`
	ExpectedReturnDate Date   `json:"expectedReturnDate"`
	ActualReturnDate   *Date  `json:"actualReturnDate"`
}

// Active reports whether the borrowing is still open.
func (b Borrowing) Active() bool {
	return b.ActualReturnDate == nil
}

// Overdue reports whether the borrowing is past due as of the given day.
func (b Borrowing) Overdue(asOf Date) bool {
	if b.ActualReturnDate != nil {
		return b.ActualReturnDate.After(b.ExpectedReturnDate.Time)
	}
	return asOf.After(b.ExpectedReturnDate.Time)
}

type Payment struct {
	ID          int             `json:"id" db:"id"`
	BorrowingID int             `json:"borrowingId" db:"borrowing_id"`
	Type        PaymentType     `json:"type" db:"type"`
	Status      PaymentStatus   `json:"status" db:"status"`
	SessionID   string          `json:"sessionId" db:"session_id"`
	SessionURL  string          `json:"sessionUrl" db:"session_url"`
	MoneyToPay  decimal.Decimal `json:"moneyToPay" db:"-"`
}

// CheckoutSession is the provider-side pending charge.
type CheckoutSession struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

type CreateBorrowingRequest struct {
	BookID             int    `json:"bookId" validate:"required"`
	ExpectedReturnDate Date   `json:"expectedReturnDate" validate:"required"`
	Username           string `json:"-"`
}

type BorrowResponse struct {
	Borrowing Borrowing `json:"borrowing"`
	Payment   Payment   `json:"payment"`
}

type ReturnResponse struct {
	Borrowing Borrowing `json:"borrowing"`
	Message   string    `json:"message"`
	Fine      *Payment  `json:"fine,omitempty"`
}

type BorrowingFilter struct {
	IsActive *bool
	Username string
}

// OverdueBorrowing is a scanner row: the open borrowing plus the book title
// for the digest message.
type OverdueBorrowing struct {
	Borrowing
	BookTitle string `json:"bookTitle" db:"title"`
}

type CreateBookRequest struct {
	Title     string          `json:"title" validate:"required"`
	Author    string          `json:"author" validate:"required"`
	Cover     CoverType       `json:"cover" validate:"required,oneof=HARD SOFT"`
	Inventory int             `json:"inventory" validate:"gte=0"`
	DailyFee  decimal.Decimal `json:"dailyFee" validate:"required"`
}
