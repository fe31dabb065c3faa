package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/service"
)

// TableHandler serves /v1/venues/:venueID/tables.
type TableHandler struct {
	Tables    *service.TableService
	Scheduler *service.Scheduler
	Log       logrus.FieldLogger
}

// NewTableHandler panics if a dependency is nil.
func NewTableHandler(tables *service.TableService, scheduler *service.Scheduler, log logrus.FieldLogger) *TableHandler {
	if tables == nil || scheduler == nil || log == nil {
		panic("nil dependency passed to NewTableHandler")
	}
	return &TableHandler{Tables: tables, Scheduler: scheduler, Log: log.WithField("component", "http")}
}

// List handles GET /v1/venues/:venueID/tables.
func (h *TableHandler) List(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	list, err := h.Tables.List(ctx, who, c.Param("venueID"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tables": tablesView(list)})
}

// Get handles GET /v1/venues/:venueID/tables/:id.
func (h *TableHandler) Get(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	t, err := h.Tables.Get(ctx, who, c.Param("venueID"), c.Param("id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, tableView(t))
}

// Create handles POST /v1/venues/:venueID/tables.
func (h *TableHandler) Create(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var req service.CreateTableRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	t, err := h.Tables.Create(ctx, who, c.Param("venueID"), req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, tableView(t))
}

// Update handles PATCH /v1/venues/:venueID/tables/:id.
func (h *TableHandler) Update(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var req service.UpdateTableRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	t, err := h.Tables.Update(ctx, who, c.Param("venueID"), c.Param("id"), req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, tableView(t))
}

// Delete handles DELETE /v1/venues/:venueID/tables/:id. Tables with
// reservation history are deactivated instead of removed.
func (h *TableHandler) Delete(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	removed, err := h.Tables.Delete(ctx, who, c.Param("venueID"), c.Param("id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	if removed {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "status": "INACTIVE"})
}

// ChangeStatus handles PUT /v1/venues/:venueID/tables/:id/status.
func (h *TableHandler) ChangeStatus(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var req service.ChangeTableStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	t, err := h.Tables.ChangeStatus(ctx, who, c.Param("venueID"), c.Param("id"), req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, tableView(t))
}

// Reconcile handles POST /v1/venues/:venueID/tables/:id/reconcile, the
// targeted trigger for one table.
func (h *TableHandler) Reconcile(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	venueID, id := c.Param("venueID"), c.Param("id")
	if _, err := h.Tables.Get(ctx, who, venueID, id); err != nil {
		return fail(c, h.Log, err)
	}
	promoted, err := h.Scheduler.ReconcileTable(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	t, err := h.Tables.Get(ctx, who, venueID, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"promoted": promoted, "table": tableView(t)})
}
