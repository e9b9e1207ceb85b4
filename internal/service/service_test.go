package service_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/libris/borrow-service/internal/errs"
	"github.com/libris/borrow-service/internal/metrics"
	"github.com/libris/borrow-service/internal/model"
	"github.com/libris/borrow-service/internal/repository"
	"github.com/libris/borrow-service/internal/service"
	"github.com/libris/borrow-service/pkg/auth"
)

type repoStub struct {
	repository.Repository

	createBorrowing func(ctx context.Context, req model.CreateBorrowingRequest, borrowDate model.Date, openSession repository.OpenSession) (repository.BorrowRow, error)
	returnBorrowing func(ctx context.Context, id int, owner string, returnDate model.Date, openSession repository.OpenSession) (repository.ReturnRow, error)
	markPaid        func(ctx context.Context, sessionID string) (model.Payment, bool, error)
	listPayments    func(ctx context.Context, owner string) ([]repository.PaymentRow, error)
}

func (r *repoStub) CreateBorrowing(ctx context.Context, req model.CreateBorrowingRequest, borrowDate model.Date, openSession repository.OpenSession) (repository.BorrowRow, error) {
	return r.createBorrowing(ctx, req, borrowDate, openSession)
}

func (r *repoStub) ReturnBorrowing(ctx context.Context, id int, owner string, returnDate model.Date, openSession repository.OpenSession) (repository.ReturnRow, error) {
	return r.returnBorrowing(ctx, id, owner, returnDate, openSession)
}

func (r *repoStub) MarkPaid(ctx context.Context, sessionID string) (model.Payment, bool, error) {
	return r.markPaid(ctx, sessionID)
}

func (r *repoStub) ListPayments(ctx context.Context, owner string) ([]repository.PaymentRow, error) {
	return r.listPayments(ctx, owner)
}

type checkoutStub struct {
	session model.CheckoutSession
	err     error

	gotCents       int64
	gotDescription string
}

func (c *checkoutStub) CreateSession(_ context.Context, amountCents int64, description string) (model.CheckoutSession, error) {
	c.gotCents = amountCents
	c.gotDescription = description
	return c.session, c.err
}

func (c *checkoutStub) RetrieveSession(context.Context, string) (model.CheckoutSession, error) {
	return c.session, c.err
}

type notifierStub struct {
	borrowed []model.Borrowing
}

func (n *notifierStub) Borrowed(b model.Borrowing, _ model.Book) {
	n.borrowed = append(n.borrowed, b)
}

func (n *notifierStub) OverdueDigest(model.Date, []model.OverdueBorrowing) {}

func addDays(d model.Date, n int) model.Date {
	return model.Date{Time: d.AddDate(0, 0, n)}
}

func newService(t *testing.T, repo repository.Repository, checkout service.CheckoutClient, notifier service.Notifier) *service.Service {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	return service.NewService(repo, checkout, notifier, m, zap.NewNop())
}

func TestService_Borrow(t *testing.T) {
	t.Parallel()

	book := model.Book{
		ID:        2,
		Title:     "Clean Architecture",
		Author:    "Robert Martin",
		Cover:     model.CoverHard,
		Inventory: 2,
		DailyFee:  decimal.RequireFromString("2.00"),
	}

	t.Run("ok. session opened inside the unit and rental priced", func(t *testing.T) {
		t.Parallel()
		today := model.Today()
		borrowing := model.Borrowing{
			ID:                 1,
			Username:           "alice",
			BookID:             book.ID,
			BorrowDate:         today,
			ExpectedReturnDate: addDays(today, 5),
		}
		checkout := &checkoutStub{session: model.CheckoutSession{
			ID:     "sess_1",
			URL:    "https://pay.example.com/sess_1",
			Status: "open",
		}}
		repo := &repoStub{
			createBorrowing: func(ctx context.Context, req model.CreateBorrowingRequest, borrowDate model.Date, openSession repository.OpenSession) (repository.BorrowRow, error) {
				require.Equal(t, "alice", req.Username)
				require.Equal(t, today, borrowDate)
				sess, err := openSession(ctx, borrowing, book, model.TypePayment)
				require.NoError(t, err)
				return repository.BorrowRow{
					Borrowing: borrowing,
					Book:      book,
					Payment: model.Payment{
						ID:          1,
						BorrowingID: borrowing.ID,
						Type:        model.TypePayment,
						Status:      model.StatusPending,
						SessionID:   sess.ID,
						SessionURL:  sess.URL,
					},
				}, nil
			},
		}
		notifier := &notifierStub{}
		s := newService(t, repo, checkout, notifier)

		resp, err := s.Borrow(context.Background(), model.CreateBorrowingRequest{
			BookID:             book.ID,
			ExpectedReturnDate: addDays(today, 5),
			Username:           "alice",
		})
		require.NoError(t, err)
		require.Equal(t, int64(1000), checkout.gotCents)
		require.Equal(t, "PAYMENT for Clean Architecture", checkout.gotDescription)
		require.Equal(t, "sess_1", resp.Payment.SessionID)
		require.True(t, resp.Payment.MoneyToPay.Equal(decimal.RequireFromString("10.00")))
		require.Len(t, notifier.borrowed, 1)
		require.Equal(t, borrowing.ID, notifier.borrowed[0].ID)
	})

	t.Run("err. expected return in the past", func(t *testing.T) {
		t.Parallel()
		s := newService(t, &repoStub{}, &checkoutStub{}, &notifierStub{})
		_, err := s.Borrow(context.Background(), model.CreateBorrowingRequest{
			BookID:             book.ID,
			ExpectedReturnDate: addDays(model.Today(), -1),
			Username:           "alice",
		})
		require.ErrorIs(t, err, errs.ErrInvalidDateRange)
	})

	t.Run("err. provider failure surfaces and nothing is announced", func(t *testing.T) {
		t.Parallel()
		repo := &repoStub{
			createBorrowing: func(ctx context.Context, req model.CreateBorrowingRequest, borrowDate model.Date, openSession repository.OpenSession) (repository.BorrowRow, error) {
				return repository.BorrowRow{}, errs.ErrPaymentSession
			},
		}
		notifier := &notifierStub{}
		s := newService(t, repo, &checkoutStub{}, notifier)

		_, err := s.Borrow(context.Background(), model.CreateBorrowingRequest{
			BookID:             book.ID,
			ExpectedReturnDate: addDays(model.Today(), 5),
			Username:           "alice",
		})
		require.ErrorIs(t, err, errs.ErrPaymentSession)
		require.Empty(t, notifier.borrowed)
	})
}

func TestService_Return(t *testing.T) {
	t.Parallel()

	book := model.Book{
		ID:       2,
		Title:    "Clean Architecture",
		DailyFee: decimal.RequireFromString("1.99"),
	}

	t.Run("ok. reader is scoped to own borrowings", func(t *testing.T) {
		t.Parallel()
		var gotOwner string
		today := model.Today()
		returned := model.Borrowing{
			ID:                 1,
			Username:           "alice",
			BookID:             book.ID,
			BorrowDate:         addDays(today, -5),
			ExpectedReturnDate: today,
			ActualReturnDate:   &today,
		}
		repo := &repoStub{
			returnBorrowing: func(ctx context.Context, id int, owner string, returnDate model.Date, openSession repository.OpenSession) (repository.ReturnRow, error) {
				gotOwner = owner
				return repository.ReturnRow{Borrowing: returned, Book: book}, nil
			},
		}
		s := newService(t, repo, &checkoutStub{}, &notifierStub{})

		resp, err := s.Return(context.Background(), 1, auth.Identity{Username: "alice", Role: auth.RoleReader})
		require.NoError(t, err)
		require.Equal(t, "alice", gotOwner)
		require.Equal(t, "The book is returned on time.", resp.Message)
		require.Nil(t, resp.Fine)
	})

	t.Run("ok. admin sees every borrowing", func(t *testing.T) {
		t.Parallel()
		var gotOwner string
		today := model.Today()
		returned := model.Borrowing{ID: 1, ExpectedReturnDate: today, ActualReturnDate: &today}
		repo := &repoStub{
			returnBorrowing: func(ctx context.Context, id int, owner string, returnDate model.Date, openSession repository.OpenSession) (repository.ReturnRow, error) {
				gotOwner = owner
				return repository.ReturnRow{Borrowing: returned, Book: book}, nil
			},
		}
		s := newService(t, repo, &checkoutStub{}, &notifierStub{})

		_, err := s.Return(context.Background(), 1, auth.Identity{Username: "root", Role: auth.RoleAdmin})
		require.NoError(t, err)
		require.Equal(t, "", gotOwner)
	})

	t.Run("ok. overdue return prices the fine at double rate", func(t *testing.T) {
		t.Parallel()
		expected := model.NewDate(2023, 4, 30)
		actual := addDays(expected, 3)
		late := model.Borrowing{
			ID:                 1,
			Username:           "alice",
			BookID:             book.ID,
			BorrowDate:         addDays(expected, -5),
			ExpectedReturnDate: expected,
			ActualReturnDate:   &actual,
		}
		fine := model.Payment{
			ID:          2,
			BorrowingID: 1,
			Type:        model.TypeFine,
			Status:      model.StatusPending,
			SessionID:   "sess_2",
			SessionURL:  "https://pay.example.com/sess_2",
		}
		repo := &repoStub{
			returnBorrowing: func(ctx context.Context, id int, owner string, returnDate model.Date, openSession repository.OpenSession) (repository.ReturnRow, error) {
				return repository.ReturnRow{Borrowing: late, Book: book, Fine: &fine}, nil
			},
		}
		s := newService(t, repo, &checkoutStub{}, &notifierStub{})

		resp, err := s.Return(context.Background(), 1, auth.Identity{Username: "alice", Role: auth.RoleReader})
		require.NoError(t, err)
		require.NotNil(t, resp.Fine)
		require.True(t, resp.Fine.MoneyToPay.Equal(decimal.RequireFromString("11.94")))
		require.Equal(t, "The book is returned overdue. Fine payment of 11.94 is issued.", resp.Message)
	})

	t.Run("err. already returned", func(t *testing.T) {
		t.Parallel()
		repo := &repoStub{
			returnBorrowing: func(ctx context.Context, id int, owner string, returnDate model.Date, openSession repository.OpenSession) (repository.ReturnRow, error) {
				return repository.ReturnRow{}, errs.ErrAlreadyReturned
			},
		}
		s := newService(t, repo, &checkoutStub{}, &notifierStub{})

		_, err := s.Return(context.Background(), 1, auth.Identity{Username: "alice", Role: auth.RoleReader})
		require.ErrorIs(t, err, errs.ErrAlreadyReturned)
	})
}

func TestService_MarkPaid(t *testing.T) {
	t.Parallel()

	t.Run("ok. repeated callback stays paid", func(t *testing.T) {
		t.Parallel()
		calls := 0
		repo := &repoStub{
			markPaid: func(ctx context.Context, sessionID string) (model.Payment, bool, error) {
				calls++
				paid := model.Payment{ID: 1, SessionID: sessionID, Status: model.StatusPaid, Type: model.TypePayment}
				return paid, calls == 1, nil
			},
		}
		s := newService(t, repo, &checkoutStub{}, &notifierStub{})

		first, err := s.MarkPaid(context.Background(), "sess_1")
		require.NoError(t, err)
		second, err := s.MarkPaid(context.Background(), "sess_1")
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, model.StatusPaid, second.Status)
	})

	t.Run("err. unknown session", func(t *testing.T) {
		t.Parallel()
		repo := &repoStub{
			markPaid: func(ctx context.Context, sessionID string) (model.Payment, bool, error) {
				return model.Payment{}, false, errs.ErrPaymentNotFound
			},
		}
		s := newService(t, repo, &checkoutStub{}, &notifierStub{})

		_, err := s.MarkPaid(context.Background(), "sess_missing")
		require.ErrorIs(t, err, errs.ErrPaymentNotFound)
	})
}

func TestService_ListPayments_Repriced(t *testing.T) {
	t.Parallel()

	expected := model.NewDate(2023, 4, 25)
	repo := &repoStub{
		listPayments: func(ctx context.Context, owner string) ([]repository.PaymentRow, error) {
			require.Equal(t, "alice", owner)
			return []repository.PaymentRow{{
				Payment: model.Payment{ID: 1, BorrowingID: 1, Type: model.TypePayment, Status: model.StatusPending},
				Borrowing: model.Borrowing{
					ID:                 1,
					BorrowDate:         expected,
					ExpectedReturnDate: addDays(expected, 5),
				},
				DailyFee: decimal.RequireFromString("2.00"),
			}}, nil
		},
	}
	s := newService(t, repo, &checkoutStub{}, &notifierStub{})

	items, err := s.ListPayments(context.Background(), auth.Identity{Username: "alice", Role: auth.RoleReader})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].MoneyToPay.Equal(decimal.RequireFromString("10.00")))
}
