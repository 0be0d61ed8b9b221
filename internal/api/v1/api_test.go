package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/critical"
	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/notification"
	"github.com/tphakala/logbook/internal/observability"
)

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	e         *echo.Echo
	db        *datastore.SQLiteStore
	ctrl      *Controller
	notifier  *notification.Service
	summaries []critical.Summary
}

func setupTestEnvironment(t *testing.T, mutate ...func(*conf.Settings)) *testEnv {
	t.Helper()

	settings := &conf.Settings{}
	settings.Main.Timezone = "UTC"
	settings.Datastore.Type = conf.DatastoreSQLite
	settings.Datastore.AutoMigrate = true
	settings.Datastore.SQLite.Path = filepath.Join(t.TempDir(), "logbook.db")
	settings.Backup.Enabled = true
	settings.Critical.ThresholdDays = critical.DefaultThresholdDays
	settings.Critical.DisplayLimit = critical.DefaultDisplayLimit
	settings.Notification.Expiry = time.Hour
	for _, fn := range mutate {
		fn(settings)
	}

	db := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	notifier := notification.NewService(notification.ServiceConfig{Expiry: time.Hour})
	t.Cleanup(notifier.Close)

	env := &testEnv{e: echo.New(), db: db, notifier: notifier}
	env.ctrl = New(env.e, settings, db,
		backup.NewStore(db, backup.WithMetrics(m.Backup)),
		backup.NewRestorer(db, backup.WithMetrics(m.Backup)),
		WithNotifications(notifier),
		WithMetrics(m),
		WithClock(func() time.Time { return fixedNow }),
		WithCriticalObserver(func(s critical.Summary) { env.summaries = append(env.summaries, s) }),
	)
	return env
}

func (env *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.db.BulkInsert(ctx, datastore.CollectionInvoices, []datastore.Record{
		datastore.Invoice{Number: "NF-1", Date: "2026-05-01", Status: datastore.InvoicePending},
		datastore.Invoice{Number: "NF-2", Date: "2026-05-09", Status: datastore.InvoiceUnderReview},
		datastore.Invoice{Number: "NF-3", Date: "2026-04-01", Status: datastore.InvoiceClassified},
	}))
	require.NoError(t, env.db.BulkInsert(ctx, datastore.CollectionOrders, []datastore.Record{
		datastore.ProductionOrder{Number: "OP-1", Date: "2026-05-05", Status: datastore.OrderInProduction},
	}))
	require.NoError(t, env.db.BulkInsert(ctx, datastore.CollectionNotes, []datastore.Record{
		datastore.Note{Date: "2026-05-02", Text: "calibrate press"},
	}))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database_status"])

	system, ok := body["system"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, system, "disk_free_gb")
	assert.Contains(t, system, "memory_used_percent")
}

func TestRecordsCRUD(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodPost, "/api/v1/records/notas",
		`{"numero":"NF-10","data":"2026-05-01","status":"Pendente","fornecedor":"ACME"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[datastore.Invoice](t, rec)
	require.NotZero(t, created.ID)

	rec = env.do(t, http.MethodPut, "/api/v1/records/notas/"+itoa(created.ID),
		`{"numero":"NF-10","data":"2026-05-01","status":"Classificada","fornecedor":"ACME"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/records/notas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]datastore.Invoice](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, datastore.InvoiceClassified, list[0].Status)

	rec = env.do(t, http.MethodDelete, "/api/v1/records/notas/"+itoa(created.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/records/notas", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Len(t, env.summaries, 3, "critical summary refreshed after each change")
	assert.Len(t, env.notifier.Store().List(&notification.FilterOptions{Component: componentRecords}), 3)
}

func TestRecordRequestErrors(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"unknown collection", http.MethodGet, "/api/v1/records/usuarios", "", http.StatusNotFound},
		{"invalid status", http.MethodPost, "/api/v1/records/ordens", `{"numero":"OP-1","data":"2026-05-01","status":"Parada"}`, http.StatusBadRequest},
		{"invalid date", http.MethodPost, "/api/v1/records/comentarios", `{"data":"2026-02-30","texto":"x"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/records/comentarios", `{"data":"2026-02-01","color":"red"}`, http.StatusBadRequest},
		{"bad id", http.MethodDelete, "/api/v1/records/comentarios/abc", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.CorrelationID)
		})
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[SnapshotSummary](t, rec)
	assert.Equal(t, backup.KindManual, created.Kind)
	assert.Equal(t, 3, created.Counts[datastore.CollectionInvoices])

	rec = env.do(t, http.MethodGet, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[SnapshotListResponse](t, rec)
	require.Len(t, list.Snapshots, 1)
	assert.Equal(t, backup.DefaultMaxSnapshots, list.MaxSnapshots)

	rec = env.do(t, http.MethodGet, "/api/v1/snapshots/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tipo":"manual"`)
	assert.Contains(t, rec.Body.String(), `"data_snapshot"`)

	// diverge, then restore
	require.NoError(t, env.db.BulkDeleteAll(context.Background(), datastore.CollectionOrders))

	rec = env.do(t, http.MethodPost, "/api/v1/snapshots/"+created.ID+"/restore", "")
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code, "restore requires confirmation")

	rec = env.do(t, http.MethodPost, "/api/v1/snapshots/"+created.ID+"/restore?confirm=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	restored := decode[RestoreResponse](t, rec)
	assert.True(t, restored.Result.Applied)
	assert.Equal(t, 1, restored.Result.Inserted[datastore.CollectionOrders])

	orders, err := env.db.FetchAll(context.Background(), datastore.CollectionOrders)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	rec = env.do(t, http.MethodDelete, "/api/v1/snapshots/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/snapshots/"+created.ID+"/restore?confirm=true", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	successes := env.notifier.Store().List(&notification.FilterOptions{Types: []notification.Type{notification.TypeSuccess}})
	failures := env.notifier.Store().List(&notification.FilterOptions{Types: []notification.Type{notification.TypeError}})
	assert.Len(t, successes, 3, "backup, restore and delete each notify")
	assert.Len(t, failures, 1, "missing snapshot restore notifies")
}

func TestResetRequiresConfirm(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/v1/reset", "")
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/reset?confirm=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	live, err := backup.LoadCollections(context.Background(), env.db)
	require.NoError(t, err)
	assert.True(t, live.IsEmpty())
	require.NotEmpty(t, env.summaries)
	assert.Zero(t, env.summaries[len(env.summaries)-1].Total)
}

func TestRestoreUnreadableSnapshotKeepsLiveData(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.seed(t)

	require.NoError(t, env.db.InsertSnapshot(context.Background(), &datastore.SnapshotRow{
		ID: "broken", CreatedAt: fixedNow, Kind: string(backup.KindManual), Payload: []byte(`{not json`),
	}))

	rec := env.do(t, http.MethodPost, "/api/v1/snapshots/broken/restore?confirm=true", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	live, err := backup.LoadCollections(context.Background(), env.db)
	require.NoError(t, err)
	assert.Len(t, live.Invoices, 3)
	assert.Len(t, live.Orders, 1)
}

func TestManualSnapshotRateLimit(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t, func(s *conf.Settings) {
		s.WebServer.RateLimit.Interval = time.Hour
		s.WebServer.RateLimit.Burst = 1
	})

	rec := env.do(t, http.MethodPost, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/snapshots", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/snapshots", "")
	assert.Equal(t, http.StatusOK, rec.Code, "listing is not throttled")
}

func TestCriticalEndpoints(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.seed(t)

	rec := env.do(t, http.MethodGet, "/api/v1/critical", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[CriticalResponse](t, rec)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "NF-1", resp.Items[0].Number, "source order: invoices first")
	assert.Equal(t, 9, resp.Items[0].AgeDays)
	assert.Equal(t, "OP-1", resp.Items[1].Number)
	assert.Equal(t, critical.Summary{Total: 2, Invoices: 1, Orders: 1, OldestAgeDays: 9}, resp.Summary)

	rec = env.do(t, http.MethodGet, "/api/v1/critical?limit=1&sort=urgency", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[CriticalResponse](t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "NF-1", resp.Items[0].Number)
	assert.Equal(t, 2, resp.Summary.Total, "summary counts every item")

	for _, bad := range []string{"?limit=-1", "?limit=x", "?sort=newest"} {
		rec = env.do(t, http.MethodGet, "/api/v1/critical"+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/critical/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":2,"invoices":1,"orders":1,"oldest_age_days":9}`, rec.Body.String())
}

func TestCalendar(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.seed(t)

	rec := env.do(t, http.MethodGet, "/api/v1/calendar?month=2026-05", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Month string         `json:"month"`
		Days  []critical.Day `json:"days"`
	}](t, rec)
	assert.Equal(t, "2026-05", body.Month)
	require.Len(t, body.Days, 31)
	assert.Equal(t, critical.DayCritical, body.Days[0].Status)
	assert.Equal(t, critical.DayNote, body.Days[1].Status)
	assert.Equal(t, critical.DayPending, body.Days[8].Status)

	rec = env.do(t, http.MethodGet, "/api/v1/calendar?month=05-2026", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	n := env.notifier.Success(componentBackup, "Backup created", "ok")
	env.notifier.Success(componentRecords, "Record saved", "ok")

	rec := env.do(t, http.MethodGet, "/api/v1/notifications/unread/count", "")
	assert.JSONEq(t, `{"unread":2}`, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/api/v1/notifications/"+n.ID+"/read", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/notifications?unread=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]notification.Notification](t, rec)
	require.Len(t, body["notifications"], 1)
	assert.Equal(t, "Record saved", body["notifications"][0].Title)

	rec = env.do(t, http.MethodPut, "/api/v1/notifications/missing/read", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/notifications?unread=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulerStatusWithoutScheduler(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodGet, "/api/v1/scheduler", "")
	assert.JSONEq(t, `{"enabled":false}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.seed(t)

	env.do(t, http.MethodPost, "/api/v1/snapshots", "")
	env.do(t, http.MethodGet, "/api/v1/critical", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "logbook_http_requests_total")
	assert.Contains(t, body, "logbook_critical_items")
	assert.Contains(t, body, "logbook_backup_")
}
