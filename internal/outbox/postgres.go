package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/vendaflow/sdr-platform/internal/model"
)

const (
	pgTableName = "pending_operations"
	pgOpTimeout = 5 * time.Second
)

// PostgresStore is the durable Store implementation over a single
// pending_operations table.
type PostgresStore struct {
	dsn string

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresStore creates a store for the given DSN. The connection and
// schema are initialized lazily on first use.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres DSN is required")
	}
	return &PostgresStore{dsn: dsn}, nil
}

func (s *PostgresStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := sql.Open("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), pgOpTimeout)
		defer cancel()

		schema := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				operation_type TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT,
				payload JSONB NOT NULL DEFAULT '{}'::jsonb,
				status TEXT NOT NULL DEFAULT 'pending',
				retry_count INT NOT NULL DEFAULT 0,
				max_retries INT NOT NULL DEFAULT 10,
				last_error TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				last_attempt_at TIMESTAMPTZ,
				completed_at TIMESTAMPTZ
			)`, pgTableName)
		if _, err := db.ExecContext(ctx, schema); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}

		index := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_status_created ON %s (status, created_at)`,
			pgTableName, pgTableName)
		if _, err := db.ExecContext(ctx, index); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}

		s.db = db
	})
	return s.initErr
}

const operationColumns = `id, operation_type, entity_type, entity_id, payload, status,
	retry_count, max_retries, last_error, created_at, updated_at, last_attempt_at, completed_at`

func scanOperation(row interface{ Scan(...any) error }) (*model.PendingOperation, error) {
	var (
		op            model.PendingOperation
		entityID      sql.NullString
		lastError     sql.NullString
		payloadRaw    []byte
		lastAttemptAt sql.NullTime
		completedAt   sql.NullTime
	)
	err := row.Scan(&op.ID, &op.OperationType, &op.EntityType, &entityID, &payloadRaw,
		&op.Status, &op.RetryCount, &op.MaxRetries, &lastError,
		&op.CreatedAt, &op.UpdatedAt, &lastAttemptAt, &completedAt)
	if err != nil {
		return nil, err
	}

	op.EntityID = entityID.String
	op.LastError = lastError.String
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		op.LastAttemptAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		op.CompletedAt = &t
	}
	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &op.Payload); err != nil {
			return nil, fmt.Errorf("malformed payload for operation %s: %w", op.ID, err)
		}
	}
	return &op, nil
}

// Create inserts a new operation. Any persistence failure is surfaced as
// model.ErrStoreUnavailable so callers know the write was not queued.
func (s *PostgresStore) Create(ctx context.Context, req model.CreateOperationRequest) (*model.PendingOperation, error) {
	if err := s.ensureReady(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = model.DefaultMaxRetries
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, operation_type, entity_type, entity_id, payload, max_retries)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING %s`, pgTableName, operationColumns)

	id := uuid.Must(uuid.NewV7()).String()
	op, err := scanOperation(s.db.QueryRowContext(ctx, query,
		id, req.OperationType, req.EntityType, req.EntityID, payloadRaw, maxRetries))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return op, nil
}

// List returns operations with the given status, oldest first.
func (s *PostgresStore) List(ctx context.Context, status model.OperationStatus, limit, offset int) ([]model.PendingOperation, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`, operationColumns, pgTableName)

	rows, err := s.db.QueryContext(ctx, query, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []model.PendingOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// Counts returns per-status counts from a single grouped query, so the total
// always equals the sum of the four named counts.
func (s *PostgresStore) Counts(ctx context.Context) (*model.OperationCounts, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, pgTableName)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := &model.OperationCounts{}
	for rows.Next() {
		var status model.OperationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case model.StatusPending:
			counts.Pending = n
		case model.StatusProcessing:
			counts.Processing = n
		case model.StatusCompleted:
			counts.Completed = n
		case model.StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	counts.Total = counts.Pending + counts.Processing + counts.Completed + counts.Failed
	return counts, nil
}

// Get returns one operation or model.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.PendingOperation, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, operationColumns, pgTableName)
	op, err := scanOperation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// SetStatus writes a status transition; false means no record matched.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status model.OperationStatus, errMsg string) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s SET
			status = $2,
			last_error = COALESCE(NULLIF($3, ''), last_error),
			last_attempt_at = CASE WHEN $2 = 'processing' THEN NOW() ELSE last_attempt_at END,
			completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1`, pgTableName)

	res, err := s.db.ExecContext(ctx, query, id, status, errMsg)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AcquireForProcessing transitions pending -> processing conditionally. The
// WHERE clause is the compare-and-set that keeps two overlapping batches from
// double-processing one record.
func (s *PostgresStore) AcquireForProcessing(ctx context.Context, id string) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s SET
			status = 'processing',
			last_attempt_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, pgTableName)

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IncrementRetry adds one failed attempt in a single update, forcing failed
// atomically when the new count reaches max_retries.
func (s *PostgresStore) IncrementRetry(ctx context.Context, id, errMsg string) (*model.PendingOperation, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s SET
			retry_count = retry_count + 1,
			last_error = $2,
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, pgTableName, operationColumns)

	op, err := scanOperation(s.db.QueryRowContext(ctx, query, id, errMsg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Reset transitions failed -> pending; false means the record was missing or
// not currently failed.
func (s *PostgresStore) Reset(ctx context.Context, id string) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s SET
			status = 'pending',
			retry_count = 0,
			last_error = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`, pgTableName)

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkCompleted transitions to completed and merges the CRM result into
// payload._crm_result.
func (s *PostgresStore) MarkCompleted(ctx context.Context, id string, result map[string]any) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}

	resultRaw := []byte("null")
	if result != nil {
		var err error
		resultRaw, err = json.Marshal(result)
		if err != nil {
			return false, fmt.Errorf("marshal result: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s SET
			status = 'completed',
			completed_at = NOW(),
			updated_at = NOW(),
			payload = CASE WHEN $2::jsonb IS NULL OR $2::jsonb = 'null'::jsonb
				THEN payload
				ELSE jsonb_set(payload, '{_crm_result}', $2::jsonb, true) END
		WHERE id = $1`, pgTableName)

	res, err := s.db.ExecContext(ctx, query, id, resultRaw)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteCompletedOlderThan removes old completed operations.
func (s *PostgresStore) DeleteCompletedOlderThan(ctx context.Context, days int) (int, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE status = 'completed'
		  AND completed_at < NOW() - make_interval(days => $1)`, pgTableName)

	res, err := s.db.ExecContext(ctx, query, days)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Ping reports whether the database connection is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
