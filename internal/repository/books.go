package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/libris/borrow-service/internal/errs"
	"github.com/libris/borrow-service/internal/model"
)

func (r *repository) ListBooks(ctx context.Context, page, size int) ([]model.Book, error) {
	q := qb.Select("id", "title", "author", "cover", "inventory", "daily_fee").
		From(booksTableName).
		OrderBy("id")
	if page != 0 && size != 0 {
		q = q.Limit(uint64(size)).Offset(uint64((page - 1) * size))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) GetBook(ctx context.Context, id int) (model.Book, error) {
	query, args, err := qb.Select("id", "title", "author", "cover", "inventory", "daily_fee").
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	q, args, err := qb.Insert(booksTableName).
		Columns("title", "author", "cover", "inventory", "daily_fee").
		Values(req.Title, req.Author, req.Cover, req.Inventory, req.DailyFee).
		Suffix("returning id, title, author, cover, inventory, daily_fee").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", q), zap.Any("args", args))
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) UpdateBook(ctx context.Context, id int, req model.CreateBookRequest) (model.Book, error) {
	q, args, err := qb.Update(booksTableName).
		Set("title", req.Title).
		Set("author", req.Author).
		Set("cover", req.Cover).
		Set("inventory", req.Inventory).
		Set("daily_fee", req.DailyFee).
		Where(sq.Eq{"id": id}).
		Suffix("returning id, title, author, cover, inventory, daily_fee").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) DeleteBook(ctx context.Context, id int) error {
	q, args, err := qb.Delete(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
