//go:build integration

package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/logbook/internal/conf"
)

func newMySQLStore(t *testing.T, withSnapshots bool) *MySQLStore {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("logbook"),
		tcmysql.WithUsername("logbook"),
		tcmysql.WithPassword("logbook"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Datastore.Type = conf.DatastoreMySQL
	settings.Datastore.AutoMigrate = true
	settings.Datastore.MySQL = conf.MySQLSettings{
		Username: "logbook",
		Password: "logbook",
		Database: "logbook",
		Host:     host,
		Port:     port.Port(),
	}
	settings.Backup.Enabled = withSnapshots

	store := &MySQLStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMySQLRoundTrip(t *testing.T) {
	store := newMySQLStore(t, true)
	ctx := context.Background()

	require.NoError(t, store.BulkInsert(ctx, CollectionInvoices, []Record{
		Invoice{Number: "NF-1", Date: "2026-03-01", Status: InvoiceAwaitingDocs},
	}))
	got, err := store.FetchAll(ctx, CollectionInvoices)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, InvoiceAwaitingDocs, got[0].(Invoice).Status)

	row := &SnapshotRow{Kind: "manual", Payload: []byte(`{"notas":[],"ordens":[],"comentarios":[]}`)}
	require.NoError(t, store.InsertSnapshot(ctx, row))
	rows, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row.ID, rows[0].ID)
}

func TestMySQLSnapshotTableMissing(t *testing.T) {
	store := newMySQLStore(t, false)

	_, err := store.ListSnapshots(context.Background())
	require.Error(t, err)
	assert.True(t, IsTableMissing(err), "error 1146 should classify as missing table: %v", err)
}
