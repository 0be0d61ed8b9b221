// model.go this code defines the data model for the logbook
package datastore

import (
	"fmt"
	"slices"
	"time"
)

// DateLayout is the calendar date format used by every tracked record.
const DateLayout = "2006-01-02"

// Collection names one of the three tracked collections. The values are the
// table names in the backing store.
type Collection string

const (
	CollectionInvoices Collection = "notas"
	CollectionOrders   Collection = "ordens"
	CollectionNotes    Collection = "comentarios"
)

// AllCollections lists the tracked collections in restore order.
var AllCollections = []Collection{CollectionInvoices, CollectionOrders, CollectionNotes}

// ParseCollection validates a collection name.
func ParseCollection(name string) (Collection, error) {
	c := Collection(name)
	if !slices.Contains(AllCollections, c) {
		return "", validationError(fmt.Sprintf("unknown collection %q", name), "collection", name)
	}
	return c, nil
}

// InvoiceStatus is the workflow status of an invoice.
type InvoiceStatus string

const (
	InvoicePending      InvoiceStatus = "Pendente"
	InvoiceUnderReview  InvoiceStatus = "Em Análise"
	InvoiceAwaitingDocs InvoiceStatus = "Aguardando Documentação"
	InvoiceClassified   InvoiceStatus = "Classificada"
)

// InvoiceStatuses lists every allowed invoice status.
var InvoiceStatuses = []InvoiceStatus{InvoicePending, InvoiceUnderReview, InvoiceAwaitingDocs, InvoiceClassified}

// Unresolved reports whether the invoice still needs attention.
func (s InvoiceStatus) Unresolved() bool {
	return s == InvoicePending || s == InvoiceUnderReview || s == InvoiceAwaitingDocs
}

// OrderStatus is the workflow status of a production order.
type OrderStatus string

const (
	OrderInProduction OrderStatus = "Em Produção"
	OrderCompleted    OrderStatus = "Concluída"
)

// OrderStatuses lists every allowed production order status.
var OrderStatuses = []OrderStatus{OrderInProduction, OrderCompleted}

// Unresolved reports whether the order is still in production.
func (s OrderStatus) Unresolved() bool {
	return s == OrderInProduction
}

// Record is implemented by the three tracked record types.
type Record interface {
	RecordID() uint
	RecordDate() string
	Collection() Collection
	// WithoutID returns a copy with the identifier cleared so the store
	// assigns a fresh one on insert.
	WithoutID() Record
	Validate() error
}

// Invoice is a tracked supplier invoice ("nota").
type Invoice struct {
	ID          uint          `gorm:"primaryKey" json:"id,omitempty"`
	Number      string        `gorm:"column:numero;size:64;index" json:"numero"`
	Date        string        `gorm:"column:data;size:10;index" json:"data"`
	Status      InvoiceStatus `gorm:"column:status;size:40;index" json:"status"`
	Supplier    string        `gorm:"column:fornecedor;size:255" json:"fornecedor"`
	Description string        `gorm:"column:descricao;type:text" json:"descricao"`
	CreatedAt   time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at,omitzero"`
}

// TableName pins the table to the collection name.
func (Invoice) TableName() string { return string(CollectionInvoices) }

func (i Invoice) RecordID() uint { return i.ID }
func (i Invoice) RecordDate() string { return i.Date }
func (i Invoice) Collection() Collection { return CollectionInvoices }

func (i Invoice) WithoutID() Record {
	i.ID = 0
	return i
}

// Validate checks the date and status invariants.
func (i Invoice) Validate() error {
	if err := ValidateDate(i.Date); err != nil {
		return err
	}
	if !slices.Contains(InvoiceStatuses, i.Status) {
		return validationError(fmt.Sprintf("invalid invoice status %q", i.Status), "status", i.Status)
	}
	return nil
}

// ProductionOrder is a tracked production order ("ordem").
type ProductionOrder struct {
	ID          uint        `gorm:"primaryKey" json:"id,omitempty"`
	Number      string      `gorm:"column:numero;size:64;index" json:"numero"`
	Date        string      `gorm:"column:data;size:10;index" json:"data"`
	Status      OrderStatus `gorm:"column:status;size:40;index" json:"status"`
	Product     string      `gorm:"column:produto;size:255" json:"produto"`
	Description string      `gorm:"column:descricao;type:text" json:"descricao"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at,omitzero"`
}

func (ProductionOrder) TableName() string { return string(CollectionOrders) }

func (o ProductionOrder) RecordID() uint { return o.ID }
func (o ProductionOrder) RecordDate() string { return o.Date }
func (o ProductionOrder) Collection() Collection { return CollectionOrders }

func (o ProductionOrder) WithoutID() Record {
	o.ID = 0
	return o
}

func (o ProductionOrder) Validate() error {
	if err := ValidateDate(o.Date); err != nil {
		return err
	}
	if !slices.Contains(OrderStatuses, o.Status) {
		return validationError(fmt.Sprintf("invalid order status %q", o.Status), "status", o.Status)
	}
	return nil
}

// Note is a free-text calendar note ("comentario"). Notes have no status.
type Note struct {
	ID        uint      `gorm:"primaryKey" json:"id,omitempty"`
	Date      string    `gorm:"column:data;size:10;index" json:"data"`
	Text      string    `gorm:"column:texto;type:text" json:"texto"`
	Author    string    `gorm:"column:autor;size:255" json:"autor"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at,omitzero"`
}

func (Note) TableName() string { return string(CollectionNotes) }

func (n Note) RecordID() uint { return n.ID }
func (n Note) RecordDate() string { return n.Date }
func (n Note) Collection() Collection { return CollectionNotes }

func (n Note) WithoutID() Record {
	n.ID = 0
	return n
}

func (n Note) Validate() error {
	return ValidateDate(n.Date)
}

// ValidateDate checks that s is a real calendar date in YYYY-MM-DD form.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return validationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s), "date", s)
	}
	return nil
}

// Collections holds the contents of all three tracked collections. It is
// also the snapshot payload.
type Collections struct {
	Invoices []Invoice         `json:"notas"`
	Orders   []ProductionOrder `json:"ordens"`
	Notes    []Note            `json:"comentarios"`
}

// Normalize replaces nil slices with empty ones so the JSON form always has
// three arrays.
func (c *Collections) Normalize() {
	if c.Invoices == nil {
		c.Invoices = []Invoice{}
	}
	if c.Orders == nil {
		c.Orders = []ProductionOrder{}
	}
	if c.Notes == nil {
		c.Notes = []Note{}
	}
}

// IsEmpty reports whether all three collections are empty.
func (c *Collections) IsEmpty() bool {
	return len(c.Invoices) == 0 && len(c.Orders) == 0 && len(c.Notes) == 0
}

// Len returns the number of records in one collection.
func (c *Collections) Len(coll Collection) int {
	switch coll {
	case CollectionInvoices:
		return len(c.Invoices)
	case CollectionOrders:
		return len(c.Orders)
	case CollectionNotes:
		return len(c.Notes)
	}
	return 0
}

// Records returns one collection as generic records.
func (c *Collections) Records(coll Collection) []Record {
	switch coll {
	case CollectionInvoices:
		return toRecords(c.Invoices)
	case CollectionOrders:
		return toRecords(c.Orders)
	case CollectionNotes:
		return toRecords(c.Notes)
	}
	return nil
}

// Set replaces one collection from generic records.
func (c *Collections) Set(coll Collection, records []Record) error {
	var err error
	switch coll {
	case CollectionInvoices:
		c.Invoices, err = fromRecords[Invoice](coll, records)
	case CollectionOrders:
		c.Orders, err = fromRecords[ProductionOrder](coll, records)
	case CollectionNotes:
		c.Notes, err = fromRecords[Note](coll, records)
	default:
		err = validationError(fmt.Sprintf("unknown collection %q", coll), "collection", coll)
	}
	return err
}

func toRecords[T Record](items []T) []Record {
	out := make([]Record, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}

func fromRecords[T Record](coll Collection, records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		typed, ok := r.(T)
		if !ok {
			return nil, validationError(fmt.Sprintf("record of type %T does not belong to %s", r, coll), "collection", coll)
		}
		out = append(out, typed)
	}
	return out, nil
}
