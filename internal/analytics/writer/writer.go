package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlez-backend/internal/analytics/types"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the analytics writer behavior.
type Config struct {
	SettlementTable string
	DrawerTable     string
	BatchSize       int
	RetryPolicy     RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// buffer accumulates rows for one table until the batch size is reached.
type buffer[T cbigquery.ValueSaver] struct {
	table string
	rows  []T
}

// BigQueryWriter streams settlement and drawer rows into BigQuery with
// retries and optional batching. It is safe for concurrent use by the
// Pub/Sub receive callbacks.
type BigQueryWriter struct {
	client    tableInserter
	batchSize int
	retry     RetryPolicy
	sleep     func(context.Context, time.Duration) error

	mu         sync.Mutex
	settlement buffer[types.SettlementEventRow]
	drawer     buffer[types.DrawerFactRow]
}

func New(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	settlement := strings.TrimSpace(cfg.SettlementTable)
	if settlement == "" {
		return nil, errors.New("settlement events table is required")
	}
	drawer := strings.TrimSpace(cfg.DrawerTable)
	if drawer == "" {
		return nil, errors.New("drawer facts table is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &BigQueryWriter{
		client:     client,
		batchSize:  batchSize,
		retry:      cfg.RetryPolicy.withDefaults(),
		sleep:      sleepCtx,
		settlement: buffer[types.SettlementEventRow]{table: settlement},
		drawer:     buffer[types.DrawerFactRow]{table: drawer},
	}, nil
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	p.MaximumBackoff = max(p.MaximumBackoff, p.InitialBackoff)
	return p
}

// InsertSettlement buffers row and flushes once the batch is full.
func (w *BigQueryWriter) InsertSettlement(ctx context.Context, row types.SettlementEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return add(ctx, w, &w.settlement, row)
}

// InsertDrawerFact buffers row and flushes once the batch is full.
func (w *BigQueryWriter) InsertDrawerFact(ctx context.Context, row types.DrawerFactRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return add(ctx, w, &w.drawer, row)
}

// Flush writes any buffered rows immediately.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return multierr.Combine(flush(ctx, w, &w.settlement), flush(ctx, w, &w.drawer))
}

func add[T cbigquery.ValueSaver](ctx context.Context, w *BigQueryWriter, b *buffer[T], row T) error {
	b.rows = append(b.rows, row)
	if len(b.rows) < w.batchSize {
		return nil
	}
	return flush(ctx, w, b)
}

// flush inserts the buffered rows. Rows BigQuery rejected stay buffered for
// the next flush; accepted rows are dropped.
func flush[T cbigquery.ValueSaver](ctx context.Context, w *BigQueryWriter, b *buffer[T]) error {
	if len(b.rows) == 0 {
		return nil
	}
	failed, err := insertWithRetry(ctx, w, b.table, b.rows)
	b.rows = failed
	return err
}

// insertWithRetry returns the rows still not inserted when it gives up.
// Partial failures retry only the rejected rows.
func insertWithRetry[T cbigquery.ValueSaver](ctx context.Context, w *BigQueryWriter, table string, rows []T) ([]T, error) {
	pending := rows
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		batch := make([]any, len(pending))
		for i, row := range pending {
			batch[i] = row
		}
		err := w.client.InsertRows(ctx, table, batch)
		if err == nil {
			return nil, nil
		}
		pending = rejectedRows(pending, err)
		if attempt >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return pending, fmt.Errorf("insert %d %s rows: %w", len(pending), table, err)
		}
		if err := w.sleep(ctx, backoff); err != nil {
			return pending, err
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

// rejectedRows keeps the rows named by a PutMultiError. Any other error
// means the whole request failed.
func rejectedRows[T any](rows []T, err error) []T {
	var multi cbigquery.PutMultiError
	if !errors.As(err, &multi) || len(multi) == 0 {
		return rows
	}
	out := make([]T, 0, len(multi))
	for _, rowErr := range multi {
		if rowErr.RowIndex >= 0 && rowErr.RowIndex < len(rows) {
			out = append(out, rows[rowErr.RowIndex])
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Streaming-insert row reasons that succeed on resend. "stopped" marks valid
// rows rejected only because another row in the request was invalid.
var retryableReasons = map[string]bool{
	"backendError":      true,
	"internalError":     true,
	"rateLimitExceeded": true,
	"timeout":           true,
	"stopped":           true,
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var putErr cbigquery.PutMultiError
	if errors.As(err, &putErr) {
		if len(putErr) == 0 {
			return false
		}
		for _, rowErr := range putErr {
			if !allRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allRetryable(multi)
	}

	var bqErr *cbigquery.Error
	if errors.As(err, &bqErr) {
		return retryableReasons[bqErr.Reason]
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return isRetryableGRPCCode(st.Code())
	}
	return false
}

func allRetryable(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, inner := range errs {
		if !isRetryableBigQueryError(inner) {
			return false
		}
	}
	return true
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	}
	return false
}

// EncodeJSON renders payload for a BigQuery JSON column. Nil and empty
// payloads become NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		marshaled, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = marshaled
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
