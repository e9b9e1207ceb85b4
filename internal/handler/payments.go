package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *Handler) ListPayments(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	items, err := h.paymentSvc.ListPayments(c.Request().Context(), caller)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetPayment(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.paymentSvc.GetPayment(c.Request().Context(), id, caller)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// PaymentSuccess is the provider redirect target; re-invocation with an
// already settled session is a no-op success.
func (h *Handler) PaymentSuccess(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is empty")
	}
	if _, err := h.paymentSvc.MarkPaid(c.Request().Context(), sessionID); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Payment was successful!"})
}

func (h *Handler) PaymentCancel(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is empty")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "The payment can be paid later. The session is available for 24h.",
	})
}
