package errs

import (
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrOutOfStock       = errors.New("the book is not available")
	ErrInvalidDateRange = errors.New("expected return date cannot be earlier than the borrow date")
	ErrAlreadyReturned  = errors.New("borrowing is already returned")
	ErrDuplicatePayment = errors.New("payment of this type already exists for the borrowing")
	ErrPaymentNotFound  = errors.New("payment session not found")
	ErrPaymentSession   = errors.New("payment session creation failed")
)
