package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/libris/borrow-service/internal/model"
)

func (h *Handler) ListBooks(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	books, err := h.bookSvc.ListBooks(c.Request().Context(), page, size)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.bookSvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) CreateBook(c echo.Context) error {
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	book, err := h.bookSvc.CreateBook(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) UpdateBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	book, err := h.bookSvc.UpdateBook(c.Request().Context(), id, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) DeleteBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.bookSvc.DeleteBook(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
