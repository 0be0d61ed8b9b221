package backup

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/logbook/internal/datastore"
)

// memSnapshots is an in-memory datastore.SnapshotRepository.
type memSnapshots struct {
	mu        sync.Mutex
	rows      []datastore.SnapshotRow
	seq       uint64
	insertErr error
	listErr   error
	deleteErr error
}

func (m *memSnapshots) InsertSnapshot(_ context.Context, row *datastore.SnapshotRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.seq++
	row.Seq = m.seq
	if row.ID == "" {
		row.ID = fmt.Sprintf("snap-%02d", m.seq)
	}
	m.rows = append(m.rows, *row)
	return nil
}

func (m *memSnapshots) ListSnapshots(context.Context) ([]datastore.SnapshotRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	rows := slices.Clone(m.rows)
	slices.SortFunc(rows, func(a, b datastore.SnapshotRow) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	return rows, nil
}

func (m *memSnapshots) DeleteSnapshot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.rows = slices.DeleteFunc(m.rows, func(r datastore.SnapshotRow) bool { return r.ID == id })
	return nil
}

func (m *memSnapshots) ids() []string {
	rows, _ := m.ListSnapshots(context.Background())
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	return ids
}

// memEntities is a non-transactional in-memory datastore.EntityStore with
// per-collection failure injection.
type memEntities struct {
	mu          sync.Mutex
	data        map[datastore.Collection][]datastore.Record
	nextID      uint
	insertCalls map[datastore.Collection]int
	fetchErr    map[datastore.Collection]error
	deleteErr   map[datastore.Collection]error
	insertErr   map[datastore.Collection]error
}

func newMemEntities() *memEntities {
	return &memEntities{
		data:        make(map[datastore.Collection][]datastore.Record),
		insertCalls: make(map[datastore.Collection]int),
		fetchErr:    make(map[datastore.Collection]error),
		deleteErr:   make(map[datastore.Collection]error),
		insertErr:   make(map[datastore.Collection]error),
	}
}

func (m *memEntities) FetchAll(_ context.Context, c datastore.Collection) ([]datastore.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchErr[c]; err != nil {
		return nil, err
	}
	return slices.Clone(m.data[c]), nil
}

func (m *memEntities) BulkDeleteAll(_ context.Context, c datastore.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[c]; err != nil {
		return err
	}
	m.data[c] = nil
	return nil
}

func (m *memEntities) BulkInsert(_ context.Context, c datastore.Collection, records []datastore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls[c]++
	if err := m.insertErr[c]; err != nil {
		return err
	}
	for _, r := range records {
		if r.RecordID() != 0 {
			return fmt.Errorf("record already has id %d", r.RecordID())
		}
		m.data[c] = append(m.data[c], m.withID(r))
	}
	return nil
}

func (m *memEntities) Upsert(_ context.Context, c datastore.Collection, r datastore.Record) (datastore.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := m.withID(r)
	m.data[c] = append(m.data[c], saved)
	return saved, nil
}

func (m *memEntities) DeleteByID(_ context.Context, c datastore.Collection, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[c] = slices.DeleteFunc(m.data[c], func(r datastore.Record) bool { return r.RecordID() == id })
	return nil
}

func (m *memEntities) withID(r datastore.Record) datastore.Record {
	m.nextID++
	switch v := r.(type) {
	case datastore.Invoice:
		v.ID = m.nextID
		return v
	case datastore.ProductionOrder:
		v.ID = m.nextID
		return v
	case datastore.Note:
		v.ID = m.nextID
		return v
	}
	return r
}

func (m *memEntities) put(records ...datastore.Record) {
	for _, r := range records {
		m.data[r.Collection()] = append(m.data[r.Collection()], m.withID(r))
	}
}

// steppingClock returns a time source advancing one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func samplePayload() datastore.Collections {
	return datastore.Collections{
		Invoices: []datastore.Invoice{
			{ID: 11, Number: "NF-100", Date: "2026-05-02", Status: datastore.InvoicePending, Supplier: "ACME"},
			{ID: 12, Number: "NF-101", Date: "2026-05-03", Status: datastore.InvoiceClassified},
		},
		Orders: []datastore.ProductionOrder{
			{ID: 21, Number: "OP-7", Date: "2026-05-01", Status: datastore.OrderInProduction, Product: "Valve"},
		},
		Notes: []datastore.Note{
			{ID: 31, Date: "2026-05-04", Text: "caldeira revisada", Author: "ana"},
		},
	}
}
