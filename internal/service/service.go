package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/libris/borrow-service/internal/errs"
	"github.com/libris/borrow-service/internal/metrics"
	"github.com/libris/borrow-service/internal/model"
	"github.com/libris/borrow-service/internal/pricing"
	"github.com/libris/borrow-service/internal/repository"
	"github.com/libris/borrow-service/pkg/auth"
	"github.com/pkg/errors"
)

// CheckoutClient is the external payment provider.
type CheckoutClient interface {
	CreateSession(ctx context.Context, amountCents int64, description string) (model.CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (model.CheckoutSession, error)
}

// Notifier delivers fire-and-forget notification events.
type Notifier interface {
	Borrowed(b model.Borrowing, book model.Book)
	OverdueDigest(asOf model.Date, items []model.OverdueBorrowing)
}

type Service struct {
	log      *zap.Logger
	repo     repository.Repository
	checkout CheckoutClient
	notifier Notifier
	metrics  *metrics.Metrics
}

func NewService(repo repository.Repository, checkout CheckoutClient, notifier Notifier, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		checkout: checkout,
		notifier: notifier,
		metrics:  m,
	}
}

const (
	resultOK             = "ok"
	resultOutOfStock     = "out_of_stock"
	resultInvalidDates   = "invalid_dates"
	resultAlreadyClosed  = "already_returned"
	resultNotFound       = "not_found"
	resultSessionFailure = "payment_session"
	resultError          = "error"
)

// Borrow reserves a copy, opens the loan and settles the rental charge as one
// atomic unit; a checkout-session failure rolls everything back.
func (s *Service) Borrow(ctx context.Context, req model.CreateBorrowingRequest) (model.BorrowResponse, error) {
	borrowDate := model.Today()
	if req.ExpectedReturnDate.Before(borrowDate.Time) {
		s.metrics.BorrowsTotal.WithLabelValues(resultInvalidDates).Inc()
		return model.BorrowResponse{}, errs.ErrInvalidDateRange
	}

	row, err := s.repo.CreateBorrowing(ctx, req, borrowDate, s.openSession)
	if err != nil {
		s.metrics.BorrowsTotal.WithLabelValues(borrowResult(err)).Inc()
		return model.BorrowResponse{}, err
	}
	s.metrics.BorrowsTotal.WithLabelValues(resultOK).Inc()
	s.metrics.PaymentsTotal.WithLabelValues(string(model.TypePayment), string(model.StatusPending)).Inc()

	s.notifier.Borrowed(row.Borrowing, row.Book)

	payment := row.Payment
	payment.MoneyToPay = pricing.PaymentAmount(payment.Type, row.Borrowing, row.Book.DailyFee)
	return model.BorrowResponse{
		Borrowing: row.Borrowing,
		Payment:   payment,
	}, nil
}

func borrowResult(err error) string {
	switch {
	case errors.Is(err, errs.ErrOutOfStock):
		return resultOutOfStock
	case errors.Is(err, errs.ErrNotFound):
		return resultNotFound
	case errors.Is(err, errs.ErrPaymentSession):
		return resultSessionFailure
	default:
		return resultError
	}
}

// Return closes the loan. A non-admin caller may only return their own
// borrowing; anyone else's looks like it does not exist.
func (s *Service) Return(ctx context.Context, id int, caller auth.Identity) (model.ReturnResponse, error) {
	owner := caller.Username
	if caller.IsAdmin() {
		owner = ""
	}

	row, err := s.repo.ReturnBorrowing(ctx, id, owner, model.Today(), s.openSession)
	if err != nil {
		s.metrics.ReturnsTotal.WithLabelValues(returnResult(err)).Inc()
		return model.ReturnResponse{}, err
	}
	s.metrics.ReturnsTotal.WithLabelValues(resultOK).Inc()

	resp := model.ReturnResponse{
		Borrowing: row.Borrowing,
		Message:   "The book is returned on time.",
	}
	if row.Fine != nil {
		s.metrics.PaymentsTotal.WithLabelValues(string(model.TypeFine), string(model.StatusPending)).Inc()
		fine := *row.Fine
		fine.MoneyToPay = pricing.PaymentAmount(fine.Type, row.Borrowing, row.Book.DailyFee)
		resp.Fine = &fine
		resp.Message = fmt.Sprintf("The book is returned overdue. Fine payment of %s is issued.", fine.MoneyToPay)
	}
	return resp, nil
}

func returnResult(err error) string {
	switch {
	case errors.Is(err, errs.ErrAlreadyReturned):
		return resultAlreadyClosed
	case errors.Is(err, errs.ErrNotFound):
		return resultNotFound
	case errors.Is(err, errs.ErrPaymentSession):
		return resultSessionFailure
	default:
		return resultError
	}
}

// openSession prices the payment and opens the provider session. Runs inside
// the repository transaction.
func (s *Service) openSession(ctx context.Context, b model.Borrowing, book model.Book, typ model.PaymentType) (model.CheckoutSession, error) {
	amount := pricing.PaymentAmount(typ, b, book.DailyFee)
	description := fmt.Sprintf("%s for %s", typ, book.Title)
	return s.checkout.CreateSession(ctx, pricing.Cents(amount), description)
}

func (s *Service) GetBorrowing(ctx context.Context, id int, caller auth.Identity) (model.Borrowing, error) {
	owner := caller.Username
	if caller.IsAdmin() {
		owner = ""
	}
	return s.repo.GetBorrowing(ctx, id, owner)
}

func (s *Service) ListBorrowings(ctx context.Context, f model.BorrowingFilter, caller auth.Identity) ([]model.Borrowing, error) {
	if !caller.IsAdmin() {
		f.Username = caller.Username
	}
	return s.repo.ListBorrowings(ctx, f)
}

func (s *Service) GetPayment(ctx context.Context, id int, caller auth.Identity) (model.Payment, error) {
	owner := caller.Username
	if caller.IsAdmin() {
		owner = ""
	}
	row, err := s.repo.GetPayment(ctx, id, owner)
	if err != nil {
		return model.Payment{}, err
	}
	return pricedPayment(row), nil
}

func (s *Service) ListPayments(ctx context.Context, caller auth.Identity) ([]model.Payment, error) {
	owner := caller.Username
	if caller.IsAdmin() {
		owner = ""
	}
	rows, err := s.repo.ListPayments(ctx, owner)
	if err != nil {
		return nil, err
	}
	items := make([]model.Payment, 0, len(rows))
	for _, row := range rows {
		items = append(items, pricedPayment(row))
	}
	return items, nil
}

func pricedPayment(row repository.PaymentRow) model.Payment {
	p := row.Payment
	p.MoneyToPay = pricing.PaymentAmount(p.Type, row.Borrowing, row.DailyFee)
	return p
}

// MarkPaid is the provider success callback. Idempotent: a second call for
// an already PAID session succeeds without touching state.
func (s *Service) MarkPaid(ctx context.Context, sessionID string) (model.Payment, error) {
	p, transitioned, err := s.repo.MarkPaid(ctx, sessionID)
	if err != nil {
		return model.Payment{}, err
	}
	if transitioned {
		s.metrics.PaymentsTotal.WithLabelValues(string(p.Type), string(model.StatusPaid)).Inc()
	}
	return p, nil
}

func (s *Service) FindOverdue(ctx context.Context, asOf model.Date, afterID, limit int) ([]model.OverdueBorrowing, error) {
	return s.repo.FindOverdue(ctx, asOf, afterID, limit)
}

func (s *Service) ListBooks(ctx context.Context, page, size int) ([]model.Book, error) {
	return s.repo.ListBooks(ctx, page, size)
}

func (s *Service) GetBook(ctx context.Context, id int) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	return s.repo.CreateBook(ctx, req)
}

func (s *Service) UpdateBook(ctx context.Context, id int, req model.CreateBookRequest) (model.Book, error) {
	return s.repo.UpdateBook(ctx, id, req)
}

func (s *Service) DeleteBook(ctx context.Context, id int) error {
	return s.repo.DeleteBook(ctx, id)
}
