package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/libris/borrow-service/internal/errs"
	"github.com/libris/borrow-service/internal/model"
	"github.com/libris/borrow-service/pkg/auth"
	"github.com/libris/borrow-service/pkg/validate"
	"github.com/pkg/errors"
)

type Handler struct {
	borrowingSvc BorrowingService
	paymentSvc   PaymentService
	bookSvc      BookService
	authCfg      auth.Config
	log          *zap.Logger
}

func New(borrowingSvc BorrowingService, paymentSvc PaymentService, bookSvc BookService, authCfg auth.Config, log *zap.Logger) *Handler {
	return &Handler{
		borrowingSvc: borrowingSvc,
		paymentSvc:   paymentSvc,
		bookSvc:      bookSvc,
		authCfg:      authCfg,
		log:          log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", newRateLimiterMW(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(requestLoggerConfig()),
		middleware.RequestID(),
		newRateLimiterMW(apiRPS),
	)

	// provider callbacks carry no user identity
	api.GET("/payments/success", h.PaymentSuccess)
	api.GET("/payments/cancel", h.PaymentCancel)

	authed := api.Group("", h.jwtAuthentication)

	authed.POST("/borrowings", h.CreateBorrowing)
	authed.GET("/borrowings", h.ListBorrowings)
	authed.GET("/borrowings/:id", h.GetBorrowing)
	authed.POST("/borrowings/:id/return", h.ReturnBorrowing)

	authed.GET("/payments", h.ListPayments)
	authed.GET("/payments/:id", h.GetPayment)

	authed.GET("/books", h.ListBooks)
	authed.GET("/books/:id", h.GetBook)
	authed.POST("/books", h.CreateBook, adminOnly)
	authed.PUT("/books/:id", h.UpdateBook, adminOnly)
	authed.DELETE("/books/:id", h.DeleteBook, adminOnly)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// toHTTPError maps the domain taxonomy onto statuses; everything else is 500.
func toHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrOutOfStock), errors.Is(err, errs.ErrInvalidDateRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrAlreadyReturned), errors.Is(err, errs.ErrDuplicatePayment):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrPaymentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrPaymentSession):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func identity(c echo.Context) (auth.Identity, error) {
	id, ok := auth.GetIdentity(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "no identity")
	}
	return id, nil
}

func pathID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateBorrowing(c echo.Context) error {
	var req model.CreateBorrowingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller, err := identity(c)
	if err != nil {
		return err
	}
	req.Username = caller.Username
	if err := c.Validate(req); err != nil {
		return err
	}

	resp, err := h.borrowingSvc.Borrow(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ReturnBorrowing(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	resp, err := h.borrowingSvc.Return(c.Request().Context(), id, caller)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetBorrowing(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	b, err := h.borrowingSvc.GetBorrowing(c.Request().Context(), id, caller)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBorrowings(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}

	var f model.BorrowingFilter
	if v := c.QueryParam("isActive"); v != "" {
		isActive, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid isActive")
		}
		f.IsActive = &isActive
	}
	f.Username = c.QueryParam("userName")

	items, err := h.borrowingSvc.ListBorrowings(c.Request().Context(), f, caller)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}
