package handler

import (
	"context"

	"github.com/libris/borrow-service/internal/model"
	"github.com/libris/borrow-service/internal/service"
	"github.com/libris/borrow-service/pkg/auth"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BorrowingService interface {
	Borrow(ctx context.Context, req model.CreateBorrowingRequest) (model.BorrowResponse, error)
	Return(ctx context.Context, id int, caller auth.Identity) (model.ReturnResponse, error)
	GetBorrowing(ctx context.Context, id int, caller auth.Identity) (model.Borrowing, error)
	ListBorrowings(ctx context.Context, f model.BorrowingFilter, caller auth.Identity) ([]model.Borrowing, error)
}

type PaymentService interface {
	GetPayment(ctx context.Context, id int, caller auth.Identity) (model.Payment, error)
	ListPayments(ctx context.Context, caller auth.Identity) ([]model.Payment, error)
	MarkPaid(ctx context.Context, sessionID string) (model.Payment, error)
}

type BookService interface {
	ListBooks(ctx context.Context, page, size int) ([]model.Book, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, id int, req model.CreateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, id int) error
}

var (
	_ BorrowingService = (*service.Service)(nil)
	_ PaymentService   = (*service.Service)(nil)
	_ BookService      = (*service.Service)(nil)
)
