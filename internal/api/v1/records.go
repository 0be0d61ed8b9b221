package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/errors"
)

const componentRecords = "records"

func (c *Controller) initRecordRoutes() {
	g := c.Group.Group("/records/:collection")
	g.GET("", c.ListRecords)
	g.POST("", c.CreateRecord)
	g.PUT("/:id", c.UpdateRecord)
	g.DELETE("/:id", c.DeleteRecord)
}

func (c *Controller) collectionParam(ctx echo.Context) (datastore.Collection, error) {
	coll, err := datastore.ParseCollection(ctx.Param("collection"))
	if err != nil {
		return "", c.HandleError(ctx, err, "unknown collection", http.StatusNotFound)
	}
	return coll, nil
}

// ListRecords handles GET /api/v1/records/:collection
func (c *Controller) ListRecords(ctx echo.Context) error {
	coll, err := c.collectionParam(ctx)
	if err != nil || coll == "" {
		return err
	}
	records, err := c.Entities.FetchAll(ctx.Request().Context(), coll)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list records", statusFor(err))
	}
	if records == nil {
		records = []datastore.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

// CreateRecord handles POST /api/v1/records/:collection
func (c *Controller) CreateRecord(ctx echo.Context) error {
	return c.saveRecord(ctx, 0)
}

// UpdateRecord handles PUT /api/v1/records/:collection/:id
func (c *Controller) UpdateRecord(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return c.HandleError(ctx, err, "invalid record id", http.StatusBadRequest)
	}
	return c.saveRecord(ctx, uint(id))
}

func (c *Controller) saveRecord(ctx echo.Context, id uint) error {
	coll, err := c.collectionParam(ctx)
	if err != nil || coll == "" {
		return err
	}

	record, err := decodeRecord(ctx, coll, id)
	if err != nil {
		return c.HandleError(ctx, err, "invalid record body", http.StatusBadRequest)
	}

	saved, err := c.Entities.Upsert(ctx.Request().Context(), coll, record)
	if err != nil {
		c.notifications.Failure(componentRecords, "Save failed", err)
		return c.HandleError(ctx, err, "failed to save record", statusFor(err))
	}
	c.notifications.Success(componentRecords, "Record saved", fmt.Sprintf("%s #%d saved", coll, saved.RecordID()))
	c.publishCritical(ctx)

	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	return ctx.JSON(status, saved)
}

// DeleteRecord handles DELETE /api/v1/records/:collection/:id
func (c *Controller) DeleteRecord(ctx echo.Context) error {
	coll, err := c.collectionParam(ctx)
	if err != nil || coll == "" {
		return err
	}
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return c.HandleError(ctx, err, "invalid record id", http.StatusBadRequest)
	}

	if err := c.Entities.DeleteByID(ctx.Request().Context(), coll, uint(id)); err != nil {
		c.notifications.Failure(componentRecords, "Delete failed", err)
		return c.HandleError(ctx, err, "failed to delete record", statusFor(err))
	}
	c.notifications.Success(componentRecords, "Record deleted", fmt.Sprintf("%s #%d deleted", coll, id))
	c.publishCritical(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

// decodeRecord reads the request body into the record type of coll. A
// non-zero id from the path overrides any id in the body.
func decodeRecord(ctx echo.Context, coll datastore.Collection, id uint) (datastore.Record, error) {
	dec := json.NewDecoder(ctx.Request().Body)
	dec.DisallowUnknownFields()

	var record datastore.Record
	switch coll {
	case datastore.CollectionInvoices:
		var v datastore.Invoice
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		v.ID = id
		record = v
	case datastore.CollectionOrders:
		var v datastore.ProductionOrder
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		v.ID = id
		record = v
	case datastore.CollectionNotes:
		var v datastore.Note
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		v.ID = id
		record = v
	default:
		return nil, errors.Newf("unknown collection %q", coll).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return record, nil
}
