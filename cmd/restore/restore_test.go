package restore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backupcmd "github.com/tphakala/logbook/cmd/backup"
	criticalcmd "github.com/tphakala/logbook/cmd/critical"
	"github.com/tphakala/logbook/internal/app"
	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/datastore"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Main.Timezone = "UTC"
	s.Datastore.Type = conf.DatastoreSQLite
	s.Datastore.AutoMigrate = true
	s.Datastore.SQLite.Path = filepath.Join(t.TempDir(), "logbook.db")
	s.Backup.Enabled = true
	s.Critical.ThresholdDays = 3
	return s
}

func TestBackupListRestore(t *testing.T) {
	t.Parallel()
	settings := testSettings(t)

	var out bytes.Buffer
	err := backupcmd.WithApp(context.Background(), settings, func(ctx context.Context, a *app.App) error {
		require.NoError(t, a.DS.BulkInsert(ctx, datastore.CollectionOrders, []datastore.Record{
			datastore.ProductionOrder{Number: "OP-1", Date: "2026-05-01", Status: datastore.OrderInProduction},
			datastore.ProductionOrder{Number: "OP-2", Date: "2026-05-09", Status: datastore.OrderInProduction},
		}))
		require.NoError(t, backupcmd.Create(ctx, &out, a))
		assert.Contains(t, out.String(), "2 ordens")

		out.Reset()
		require.NoError(t, backupcmd.List(ctx, &out, a.Snapshots, time.UTC))
		assert.Contains(t, out.String(), "manual")

		snaps, err := a.Snapshots.ListSnapshots(ctx)
		require.NoError(t, err)
		require.Len(t, snaps, 1)

		require.NoError(t, a.DS.BulkDeleteAll(ctx, datastore.CollectionOrders))

		out.Reset()
		require.NoError(t, Restore(ctx, &out, a, snaps[0].ID))
		assert.Contains(t, out.String(), "2 records written")

		out.Reset()
		today := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
		require.NoError(t, criticalcmd.Print(ctx, &out, a, today, 0, true))
		assert.Contains(t, out.String(), "1 critical (0 notas, 1 ordens), oldest 9 days")
		assert.Contains(t, out.String(), "OP-1")
		assert.NotContains(t, out.String(), "OP-2")

		err = Restore(ctx, &out, a, "missing")
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestRestoreRequiresConfirmation(t *testing.T) {
	t.Parallel()
	settings := testSettings(t)

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"some-id"})
	require.Error(t, cmd.Execute())
	assert.Contains(t, out.String(), "WARNING")

	reset := ResetCommand(settings)
	reset.SetOut(&out)
	reset.SetErr(&out)
	reset.SetArgs(nil)
	assert.Error(t, reset.Execute())
}
