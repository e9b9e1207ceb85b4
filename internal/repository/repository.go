package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/libris/borrow-service/internal/errs"
	"github.com/libris/borrow-service/internal/model"
)

// OpenSession creates an external checkout session for the payment being
// recorded. It runs inside the borrow/return transaction so a provider
// failure rolls the whole unit back.
type OpenSession func(ctx context.Context, b model.Borrowing, book model.Book, typ model.PaymentType) (model.CheckoutSession, error)

// PaymentRow is a payment joined with the borrowing dates and book fee the
// amount is recomputed from.
type PaymentRow struct {
	Payment   model.Payment
	Borrowing model.Borrowing
	DailyFee  decimal.Decimal
	BookTitle string
}

type BorrowRow struct {
	Borrowing model.Borrowing
	Book      model.Book
	Payment   model.Payment
}

type ReturnRow struct {
	Borrowing model.Borrowing
	Book      model.Book
	Fine      *model.Payment
}

type Repository interface {
	CreateBorrowing(ctx context.Context, req model.CreateBorrowingRequest, borrowDate model.Date, openSession OpenSession) (BorrowRow, error)
	ReturnBorrowing(ctx context.Context, id int, owner string, returnDate model.Date, openSession OpenSession) (ReturnRow, error)
	GetBorrowing(ctx context.Context, id int, owner string) (model.Borrowing, error)
	ListBorrowings(ctx context.Context, f model.BorrowingFilter) ([]model.Borrowing, error)
	GetPayment(ctx context.Context, id int, owner string) (PaymentRow, error)
	ListPayments(ctx context.Context, owner string) ([]PaymentRow, error)
	MarkPaid(ctx context.Context, sessionID string) (model.Payment, bool, error)
	FindOverdue(ctx context.Context, asOf model.Date, afterID, limit int) ([]model.OverdueBorrowing, error)

	ListBooks(ctx context.Context, page, size int) ([]model.Book, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, id int, req model.CreateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, id int) error
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	booksTableName      = `books`
	borrowingsTableName = `borrowings`
	paymentsTableName   = `payments`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type borrowingRow struct {
	ID                 int          `db:"id"`
	Username           string       `db:"username"`
	BookID             int          `db:"book_id"`
	BorrowDate         time.Time    `db:"borrow_date"`
	ExpectedReturnDate time.Time    `db:"expected_return_date"`
	ActualReturnDate   sql.NullTime `db:"actual_return_date"`
}

func (r borrowingRow) toModel() model.Borrowing {
	b := model.Borrowing{
		ID:                 r.ID,
		Username:           r.Username,
		BookID:             r.BookID,
		BorrowDate:         toDate(r.BorrowDate),
		ExpectedReturnDate: toDate(r.ExpectedReturnDate),
	}
	if r.ActualReturnDate.Valid {
		d := toDate(r.ActualReturnDate.Time)
		b.ActualReturnDate = &d
	}
	return b
}

func toDate(t time.Time) model.Date {
	return model.NewDate(t.Year(), t.Month(), t.Day())
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// CreateBorrowing reserves a copy, opens the loan and records its PENDING
// rental payment as one transaction. The book row is locked for the
// check-and-decrement so two borrowers never take the last copy.
func (r *repository) CreateBorrowing(ctx context.Context, req model.CreateBorrowingRequest, borrowDate model.Date, openSession OpenSession) (BorrowRow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return BorrowRow{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var book model.Book
	q := `select id, title, author, cover, inventory, daily_fee from books where id = $1 for update`
	if err := tx.GetContext(ctx, &book, q, req.BookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BorrowRow{}, errs.ErrNotFound
		}
		return BorrowRow{}, errors.Wrap(err, "lock book")
	}
	if book.Inventory <= 0 {
		return BorrowRow{}, errs.ErrOutOfStock
	}

	if _, err := tx.ExecContext(ctx, `update books set inventory = inventory - 1 where id = $1`, req.BookID); err != nil {
		return BorrowRow{}, errors.Wrap(err, "reserve copy")
	}
	book.Inventory--

	q, args, err := qb.Insert(borrowingsTableName).
		Columns("username", "book_id", "borrow_date", "expected_return_date").
		Values(req.Username, req.BookID, borrowDate, req.ExpectedReturnDate).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return BorrowRow{}, err
	}
	var row borrowingRow
	if err := tx.GetContext(ctx, &row, q, args...); err != nil {
		r.log.Error("CreateBorrowing", zap.String("q", q), zap.Any("args", args))
		return BorrowRow{}, errors.Wrap(err, "insert borrowing")
	}
	borrowing := row.toModel()

	payment, err := r.insertPayment(ctx, tx, borrowing, book, model.TypePayment, openSession)
	if err != nil {
		return BorrowRow{}, err
	}

	if err := tx.Commit(); err != nil {
		return BorrowRow{}, errors.Wrap(err, "commit")
	}
	return BorrowRow{Borrowing: borrowing, Book: book, Payment: payment}, nil
}

// ReturnBorrowing closes the loan, releases the copy and, when the return is
// late, records the FINE payment, all in one transaction. An empty owner
// skips the ownership check (admin). A non-owner observes not-found rather
// than a permission error.
func (r *repository) ReturnBorrowing(ctx context.Context, id int, owner string, returnDate model.Date, openSession OpenSession) (ReturnRow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return ReturnRow{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var row borrowingRow
	q := `select id, username, book_id, borrow_date, expected_return_date, actual_return_date
	from borrowings where id = $1 for update`
	if err := tx.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReturnRow{}, errs.ErrNotFound
		}
		return ReturnRow{}, errors.Wrap(err, "lock borrowing")
	}
	if owner != "" && row.Username != owner {
		return ReturnRow{}, errs.ErrNotFound
	}
	if row.ActualReturnDate.Valid {
		return ReturnRow{}, errs.ErrAlreadyReturned
	}
	if returnDate.Before(row.BorrowDate) {
		return ReturnRow{}, errs.ErrInvalidDateRange
	}

	if _, err := tx.ExecContext(ctx,
		`update borrowings set actual_return_date = $2 where id = $1`, id, returnDate); err != nil {
		return ReturnRow{}, errors.Wrap(err, "close borrowing")
	}
	actual := returnDate
	borrowing := row.toModel()
	borrowing.ActualReturnDate = &actual

	var book model.Book
	q = `update books set inventory = inventory + 1 where id = $1
	returning id, title, author, cover, inventory, daily_fee`
	if err := tx.GetContext(ctx, &book, q, row.BookID); err != nil {
		return ReturnRow{}, errors.Wrap(err, "release copy")
	}

	res := ReturnRow{Borrowing: borrowing, Book: book}
	if borrowing.Overdue(returnDate) {
		fine, err := r.insertPayment(ctx, tx, borrowing, book, model.TypeFine, openSession)
		if err != nil {
			return ReturnRow{}, err
		}
		res.Fine = &fine
	}

	if err := tx.Commit(); err != nil {
		return ReturnRow{}, errors.Wrap(err, "commit")
	}
	return res, nil
}

func (r *repository) insertPayment(ctx context.Context, tx *sqlx.Tx, b model.Borrowing, book model.Book, typ model.PaymentType, openSession OpenSession) (model.Payment, error) {
	session, err := openSession(ctx, b, book, typ)
	if err != nil {
		return model.Payment{}, err
	}

	q, args, err := qb.Insert(paymentsTableName).
		Columns("borrowing_id", "type", "status", "session_id", "session_url").
		Values(b.ID, typ, model.StatusPending, session.ID, session.URL).
		Suffix("returning id, borrowing_id, type, status, session_id, session_url").
		ToSql()
	if err != nil {
		return model.Payment{}, err
	}
	var p model.Payment
	if err := tx.GetContext(ctx, &p, q, args...); err != nil {
		if isUniqueViolation(err) {
			return model.Payment{}, errs.ErrDuplicatePayment
		}
		r.log.Error("insertPayment", zap.String("q", q), zap.Any("args", args))
		return model.Payment{}, errors.Wrap(err, "insert payment")
	}
	return p, nil
}

func (r *repository) GetBorrowing(ctx context.Context, id int, owner string) (model.Borrowing, error) {
	q := qb.Select("id", "username", "book_id", "borrow_date", "expected_return_date", "actual_return_date").
		From(borrowingsTableName).
		Where(sq.Eq{"id": id})
	if owner != "" {
		q = q.Where(sq.Eq{"username": owner})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}
	var row borrowingRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Borrowing{}, errs.ErrNotFound
		}
		return model.Borrowing{}, err
	}
	return row.toModel(), nil
}

func (r *repository) ListBorrowings(ctx context.Context, f model.BorrowingFilter) ([]model.Borrowing, error) {
	q := qb.Select("id", "username", "book_id", "borrow_date", "expected_return_date", "actual_return_date").
		From(borrowingsTableName).
		OrderBy("id")
	if f.Username != "" {
		q = q.Where(sq.Eq{"username": f.Username})
	}
	if f.IsActive != nil {
		if *f.IsActive {
			q = q.Where("actual_return_date is null")
		} else {
			q = q.Where("actual_return_date is not null")
		}
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []borrowingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	items := make([]model.Borrowing, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toModel())
	}
	return items, nil
}

type paymentDetailRow struct {
	ID                 int             `db:"id"`
	BorrowingID        int             `db:"borrowing_id"`
	Type               string          `db:"type"`
	Status             string          `db:"status"`
	SessionID          string          `db:"session_id"`
	SessionURL         string          `db:"session_url"`
	Username           string          `db:"username"`
	BookID             int             `db:"book_id"`
	BorrowDate         time.Time       `db:"borrow_date"`
	ExpectedReturnDate time.Time       `db:"expected_return_date"`
	ActualReturnDate   sql.NullTime    `db:"actual_return_date"`
	DailyFee           decimal.Decimal `db:"daily_fee"`
	Title              string          `db:"title"`
}

func (r paymentDetailRow) toRow() PaymentRow {
	b := borrowingRow{
		ID:                 r.BorrowingID,
		Username:           r.Username,
		BookID:             r.BookID,
		BorrowDate:         r.BorrowDate,
		ExpectedReturnDate: r.ExpectedReturnDate,
		ActualReturnDate:   r.ActualReturnDate,
	}
	return PaymentRow{
		Payment: model.Payment{
			ID:          r.ID,
			BorrowingID: r.BorrowingID,
			Type:        model.PaymentType(r.Type),
			Status:      model.PaymentStatus(r.Status),
			SessionID:   r.SessionID,
			SessionURL:  r.SessionURL,
		},
		Borrowing: b.toModel(),
		DailyFee:  r.DailyFee,
		BookTitle: r.Title,
	}
}

const paymentDetailQuery = `
select p.id, p.borrowing_id, p.type, p.status, p.session_id, p.session_url,
       b.username, b.book_id, b.borrow_date, b.expected_return_date, b.actual_return_date,
       bk.daily_fee, bk.title
from payments p
join borrowings b on b.id = p.borrowing_id
join books bk on bk.id = b.book_id`

func (r *repository) GetPayment(ctx context.Context, id int, owner string) (PaymentRow, error) {
	q := paymentDetailQuery + ` where p.id = $1`
	args := []any{id}
	if owner != "" {
		q += ` and b.username = $2`
		args = append(args, owner)
	}
	var row paymentDetailRow
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PaymentRow{}, errs.ErrNotFound
		}
		return PaymentRow{}, err
	}
	return row.toRow(), nil
}

func (r *repository) ListPayments(ctx context.Context, owner string) ([]PaymentRow, error) {
	q := paymentDetailQuery
	var args []any
	if owner != "" {
		q += ` where b.username = $1`
		args = append(args, owner)
	}
	q += ` order by p.id`
	var rows []paymentDetailRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	items := make([]PaymentRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toRow())
	}
	return items, nil
}

// MarkPaid is scoped to the unique session id so the provider callback never
// races payment creation for other borrowings. Re-invocation on an already
// PAID payment is a no-op.
func (r *repository) MarkPaid(ctx context.Context, sessionID string) (model.Payment, bool, error) {
	var p model.Payment
	q := `update payments set status = $2
	where session_id = $1 and status = $3
	returning id, borrowing_id, type, status, session_id, session_url`
	err := r.db.GetContext(ctx, &p, q, sessionID, model.StatusPaid, model.StatusPending)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, false, errors.Wrap(err, "mark paid")
	}

	q = `select id, borrowing_id, type, status, session_id, session_url from payments where session_id = $1`
	if err := r.db.GetContext(ctx, &p, q, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Payment{}, false, errs.ErrPaymentNotFound
		}
		return model.Payment{}, false, err
	}
	return p, false, nil
}

// FindOverdue pages through open borrowings past due with keyset pagination,
// so the sweep is lazy and restartable from the last seen id.
func (r *repository) FindOverdue(ctx context.Context, asOf model.Date, afterID, limit int) ([]model.OverdueBorrowing, error) {
	q := `
	select b.id, b.username, b.book_id, b.borrow_date, b.expected_return_date, bk.title
	from borrowings b
	join books bk on bk.id = b.book_id
	where b.actual_return_date is null and b.expected_return_date < $1 and b.id > $2
	order by b.id
	limit $3`

	type overdueRow struct {
		ID                 int       `db:"id"`
		Username           string    `db:"username"`
		BookID             int       `db:"book_id"`
		BorrowDate         time.Time `db:"borrow_date"`
		ExpectedReturnDate time.Time `db:"expected_return_date"`
		Title              string    `db:"title"`
	}
	var rows []overdueRow
	if err := r.db.SelectContext(ctx, &rows, q, asOf, afterID, limit); err != nil {
		return nil, err
	}
	items := make([]model.OverdueBorrowing, 0, len(rows))
	for _, row := range rows {
		items = append(items, model.OverdueBorrowing{
			Borrowing: model.Borrowing{
				ID:                 row.ID,
				Username:           row.Username,
				BookID:             row.BookID,
				BorrowDate:         toDate(row.BorrowDate),
				ExpectedReturnDate: toDate(row.ExpectedReturnDate),
			},
			BookTitle: row.Title,
		})
	}
	return items, nil
}
