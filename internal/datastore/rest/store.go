// Package rest implements the datastore contracts against a hosted
// PostgREST-compatible API, such as the one fronting a managed Postgres.
package rest

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/errors"
	"github.com/tphakala/logbook/internal/httpclient"
	"github.com/tphakala/logbook/internal/logger"
)

const componentName = "datastore.rest"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Store talks to the hosted backend over HTTP. It satisfies
// datastore.Interface but not datastore.Transactional.
type Store struct {
	Settings *conf.Settings

	base   *url.URL
	client *httpclient.Client
}

var _ datastore.Interface = (*Store)(nil)

// New returns an unopened store for settings.Datastore.REST.
func New(settings *conf.Settings) *Store {
	return &Store{Settings: settings}
}

// Open validates the base URL and prepares the HTTP client.
func (s *Store) Open() error {
	if s.Settings == nil {
		return validationError("settings are required", "settings", nil)
	}
	cfg := s.Settings.Datastore.REST

	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return validationError("datastore.rest.url must be an absolute URL", "datastore.rest.url", cfg.URL)
	}
	s.base = base

	headers := http.Header{}
	if cfg.APIKey != "" {
		headers.Set("apikey", cfg.APIKey)
		headers.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	s.client = httpclient.New(&httpclient.Config{
		DefaultTimeout: cfg.Timeout,
		Headers:        headers,
	})

	log := GetLogger()
	s.client.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error) {
		if err != nil {
			log.Debug("request failed",
				logger.String("method", req.Method),
				logger.String("path", req.URL.Path),
				logger.Error(err))
			return
		}
		log.Trace("request completed",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Int("status", resp.StatusCode))
	})

	log.Info("connected to hosted datastore", logger.String("host", base.Host))
	return nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// HTTPClient exposes the transport for tests. Valid after Open.
func (s *Store) HTTPClient() *http.Client {
	return s.client.HTTPClient()
}

func (s *Store) endpoint(table string, query url.Values) string {
	u := *s.base
	u.Path = u.Path + "/" + table
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends one request and decodes a JSON response into out when out is
// non-nil. Non-2xx responses become categorized errors.
func (s *Store) do(ctx context.Context, method, table string, query url.Values, body any, prefer string, out any) error {
	if s.client == nil {
		return errors.Newf("hosted datastore is not open").
			Component(componentName).
			Category(errors.CategoryState).
			Build()
	}

	var headers http.Header
	if prefer != "" {
		headers = http.Header{"Prefer": {prefer}}
	}
	req, err := httpclient.NewJSONRequest(ctx, method, s.endpoint(table, query), body, headers)
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("table", table).
			Build()
	}

	start := time.Now()
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Priority(errors.PriorityHigh).
			Context("method", method).
			Context("table", table).
			Endpoint(s.base.String(), s.Settings.Datastore.REST.Timeout).
			Elapsed(time.Since(start)).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp, method, table)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(fmt.Errorf("failed to decode %s response: %w", table, err)).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Context("table", table).
			Build()
	}
	return nil
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// Codes reported for a relation that does not exist: the Postgres
// SQLSTATE and the PostgREST schema cache miss.
const (
	codeUndefinedTable = "42P01"
	codeSchemaCache    = "PGRST205"
)

func responseError(resp *http.Response, method, table string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body apiError
	_ = json.Unmarshal(data, &body)
	msg := body.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}

	var err error = fmt.Errorf("%s %s: status %d: %s", method, table, resp.StatusCode, msg)
	if body.Code == codeUndefinedTable || body.Code == codeSchemaCache {
		err = fmt.Errorf("%w: %w", datastore.ErrTableMissing, err)
	}

	category := errors.CategoryDatabase
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		category = errors.CategoryConfiguration
	case resp.StatusCode >= http.StatusInternalServerError:
		category = errors.CategoryNetwork
	}

	return errors.New(err).
		Component(componentName).
		Category(category).
		Context("status", resp.StatusCode).
		Context("code", body.Code).
		Context("table", table).
		Build()
}

func tableFor(c datastore.Collection) (string, error) {
	for _, known := range datastore.AllCollections {
		if c == known {
			return string(c), nil
		}
	}
	return "", validationError(fmt.Sprintf("unknown collection %q", c), "collection", c)
}

// FetchAll returns every record of a collection ordered by id.
func (s *Store) FetchAll(ctx context.Context, c datastore.Collection) ([]datastore.Record, error) {
	table, err := tableFor(c)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	query := url.Values{"select": {"*"}, "order": {"id.asc"}}
	if err := s.do(ctx, http.MethodGet, table, query, nil, "", &raw); err != nil {
		return nil, err
	}
	return decodeRecords(c, raw)
}

// BulkDeleteAll removes every record of a collection. PostgREST refuses
// unfiltered deletes, so the filter matches every row with an id.
func (s *Store) BulkDeleteAll(ctx context.Context, c datastore.Collection) error {
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	return s.do(ctx, http.MethodDelete, table, url.Values{"id": {"not.is.null"}}, nil, "return=minimal", nil)
}

// BulkInsert posts all records in one request. An empty slice is a no-op.
func (s *Store) BulkInsert(ctx context.Context, c datastore.Collection, records []datastore.Record) error {
	if len(records) == 0 {
		return nil
	}
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Collection() != c {
			return validationError(fmt.Sprintf("record of type %T does not belong to %s", r, c), "collection", c)
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return s.do(ctx, http.MethodPost, table, nil, records, "return=minimal", nil)
}

// Upsert inserts a record without an id, or merges on the primary key.
func (s *Store) Upsert(ctx context.Context, c datastore.Collection, r datastore.Record) (datastore.Record, error) {
	if r == nil {
		return nil, validationError("record is required", "record", nil)
	}
	if r.Collection() != c {
		return nil, validationError(fmt.Sprintf("record of type %T does not belong to %s", r, c), "collection", c)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	prefer := "return=representation"
	if r.RecordID() != 0 {
		prefer = "resolution=merge-duplicates,return=representation"
	}

	var raw json.RawMessage
	if err := s.do(ctx, http.MethodPost, string(c), nil, []datastore.Record{r}, prefer, &raw); err != nil {
		return nil, err
	}
	saved, err := decodeRecords(c, raw)
	if err != nil {
		return nil, err
	}
	if len(saved) == 0 {
		return nil, errors.Newf("upsert into %s returned no rows", c).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Build()
	}
	return saved[0], nil
}

// DeleteByID removes one record. A missing id is not an error.
func (s *Store) DeleteByID(ctx context.Context, c datastore.Collection, id uint) error {
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	query := url.Values{"id": {"eq." + strconv.FormatUint(uint64(id), 10)}}
	return s.do(ctx, http.MethodDelete, table, query, nil, "return=minimal", nil)
}

// snapshotRow is the hosted wire form of a snapshot. data_snapshot is a
// jsonb column, so the payload travels as raw JSON. seq is a server-side
// identity column and is never sent.
type snapshotRow struct {
	Seq       uint64          `json:"seq,omitempty"`
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Kind      string          `json:"tipo"`
	Payload   json.RawMessage `json:"data_snapshot"`
}

// InsertSnapshot stores a snapshot row, generating its id and timestamp.
func (s *Store) InsertSnapshot(ctx context.Context, row *datastore.SnapshotRow) error {
	if row == nil {
		return validationError("snapshot row is required", "snapshot", nil)
	}
	if !json.Valid(row.Payload) {
		return validationError("snapshot payload is not valid JSON", "data_snapshot", len(row.Payload))
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	wire := snapshotRow{ID: row.ID, CreatedAt: row.CreatedAt, Kind: row.Kind, Payload: row.Payload}
	return s.do(ctx, http.MethodPost, datastore.SnapshotTable, nil, wire, "return=minimal", nil)
}

// ListSnapshots returns all snapshot rows newest-first. Rows with equal
// created_at are ordered by insertion, latest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]datastore.SnapshotRow, error) {
	var wire []snapshotRow
	query := url.Values{"select": {"seq,id,created_at,tipo,data_snapshot"}, "order": {"created_at.desc,seq.desc"}}
	if err := s.do(ctx, http.MethodGet, datastore.SnapshotTable, query, nil, "", &wire); err != nil {
		return nil, err
	}

	rows := make([]datastore.SnapshotRow, 0, len(wire))
	for _, w := range wire {
		rows = append(rows, datastore.SnapshotRow{
			Seq:       w.Seq,
			ID:        w.ID,
			CreatedAt: w.CreatedAt,
			Kind:      w.Kind,
			Payload:   []byte(w.Payload),
		})
	}
	slices.SortStableFunc(rows, func(a, b datastore.SnapshotRow) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	return rows, nil
}

// DeleteSnapshot removes a snapshot row by id.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, datastore.SnapshotTable, url.Values{"id": {"eq." + id}}, nil, "return=minimal", nil)
}

func decodeRecords(c datastore.Collection, raw json.RawMessage) ([]datastore.Record, error) {
	switch c {
	case datastore.CollectionInvoices:
		return decode[datastore.Invoice](c, raw)
	case datastore.CollectionOrders:
		return decode[datastore.ProductionOrder](c, raw)
	case datastore.CollectionNotes:
		return decode[datastore.Note](c, raw)
	}
	return nil, validationError(fmt.Sprintf("unknown collection %q", c), "collection", c)
}

func decode[T datastore.Record](c datastore.Collection, raw json.RawMessage) ([]datastore.Record, error) {
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.New(fmt.Errorf("failed to decode %s: %w", c, err)).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Build()
	}
	records := make([]datastore.Record, 0, len(items))
	for _, item := range items {
		records = append(records, item)
	}
	return records, nil
}

func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component(componentName).
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}
