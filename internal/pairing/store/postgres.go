package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"scanhub/internal/pairing"
	"scanhub/pkg/platform/sentinel"
	txcontext "scanhub/pkg/platform/tx"
)

// PostgresStore persists pairing records in PostgreSQL. The store is pure
// I/O; commit orchestration belongs to the pairing service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the pairings table and its indexes.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pairings (
			id BIGSERIAL PRIMARY KEY,
			identity_key TEXT NOT NULL,
			platform BIGINT NOT NULL,
			product BIGINT NOT NULL,
			scanned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			overwrite BOOLEAN NOT NULL DEFAULT FALSE,
			sync_status TEXT NOT NULL DEFAULT 'pending',
			sync_error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_pairings_product ON pairings (product, scanned_at DESC);
		CREATE INDEX IF NOT EXISTS idx_pairings_scanned_at ON pairings (scanned_at);
		CREATE INDEX IF NOT EXISTS idx_pairings_identity ON pairings (identity_key);
	`)
	if err != nil {
		return fmt.Errorf("ensure pairings schema: %w", err)
	}
	return nil
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// InTx runs fn inside a single SQL transaction. Nested calls join the
// enclosing transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pairing tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pairing tx: %w", err)
	}
	return nil
}

// FindAndMarkOverwritten takes a product-scoped advisory lock, flips the
// overwrite flag on the product's most recent record, and returns it. Must be
// called inside InTx: the lock is transaction-scoped, so a concurrent commit
// for the same product blocks until this one commits and then sees its
// inserted record. A row lock cannot arbitrate the case where no prior row
// exists yet, and under READ COMMITTED a blocked reader re-checks only the
// row it already chose, never the winner's insert.
func (s *PostgresStore) FindAndMarkOverwritten(ctx context.Context, product int64) (*pairing.Prior, error) {
	q := s.querier(ctx)
	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, product); err != nil {
		return nil, fmt.Errorf("lock product %d: %w", product, err)
	}
	row := q.QueryRowContext(ctx, `
		SELECT id, platform FROM pairings
		WHERE product = $1
		ORDER BY scanned_at DESC, id DESC
		LIMIT 1
	`, product)

	var prior pairing.Prior
	if err := row.Scan(&prior.ID, &prior.Platform); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find prior pairing: %w", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE pairings SET overwrite = TRUE WHERE id = $1`, prior.ID); err != nil {
		return nil, fmt.Errorf("mark pairing overwritten: %w", err)
	}
	return &prior, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *pairing.Record) (int64, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		INSERT INTO pairings (identity_key, platform, product, scanned_at, overwrite, sync_status)
		VALUES ($1, $2, $3, $4, FALSE, 'pending')
		RETURNING id
	`, rec.IdentityKey, rec.Platform, rec.Product, rec.ScannedAt)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert pairing: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpdateSyncStatus(ctx context.Context, id int64, status pairing.SyncStatus, diagnostic string) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE pairings SET sync_status = $2, sync_error = NULLIF($3, '')
		WHERE id = $1
	`, id, string(status), diagnostic)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update sync status for record %d: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindLatestForIdentity(ctx context.Context, identityKey string) (*pairing.Record, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, identity_key, platform, product, scanned_at, overwrite, sync_status, sync_error
		FROM pairings
		WHERE identity_key = $1
		ORDER BY scanned_at DESC, id DESC
		LIMIT 1
	`, identityKey)
	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("latest pairing for %q: %w", identityKey, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("latest pairing for %q: %w", identityKey, err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, f pairing.Filter) ([]*pairing.Record, error) {
	where, args := buildWhere(f)

	sortField, ok := sortColumns[f.SortField]
	if !ok {
		sortField = "scanned_at"
	}
	order := "DESC"
	if f.SortAsc {
		order = "ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, identity_key, platform, product, scanned_at, overwrite, sync_status, sync_error
		FROM pairings %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, where, sortField, order, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pairings: %w", err)
	}
	defer rows.Close()

	records := []*pairing.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list pairings: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pairings: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Count(ctx context.Context, f pairing.Filter) (int, error) {
	where, args := buildWhere(f)
	var count int
	err := s.querier(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM pairings `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pairings: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Charts(ctx context.Context, f pairing.Filter) (*pairing.ChartData, error) {
	where, args := buildWhere(f)
	q := s.querier(ctx)
	data := &pairing.ChartData{
		ByDate:     []pairing.DateCount{},
		ByIdentity: []pairing.IdentityCount{},
		ByPlatform: []pairing.PlatformCount{},
	}

	err := q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN overwrite THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN sync_status = 'failure' THEN 1 ELSE 0 END), 0)
		FROM pairings %s
	`, where), args...).Scan(&data.Summary.Total, &data.Summary.Overwrites, &data.Summary.Errors)
	if err != nil {
		return nil, fmt.Errorf("chart summary: %w", err)
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT TO_CHAR(scanned_at, 'YYYY-MM-DD') AS date, COUNT(*)
		FROM pairings %s
		GROUP BY date ORDER BY date ASC
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("chart by date: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dc pairing.DateCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("chart by date: %w", err)
		}
		data.ByDate = append(data.ByDate, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chart by date: %w", err)
	}

	rows, err = q.QueryContext(ctx, fmt.Sprintf(`
		SELECT identity_key, COUNT(*) AS count
		FROM pairings %s
		GROUP BY identity_key ORDER BY count DESC LIMIT 10
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("chart by identity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ic pairing.IdentityCount
		if err := rows.Scan(&ic.Identity, &ic.Count); err != nil {
			return nil, fmt.Errorf("chart by identity: %w", err)
		}
		data.ByIdentity = append(data.ByIdentity, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chart by identity: %w", err)
	}

	rows, err = q.QueryContext(ctx, fmt.Sprintf(`
		SELECT platform, COUNT(*) AS count
		FROM pairings %s
		GROUP BY platform ORDER BY count DESC
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("chart by platform: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pc pairing.PlatformCount
		if err := rows.Scan(&pc.Platform, &pc.Count); err != nil {
			return nil, fmt.Errorf("chart by platform: %w", err)
		}
		data.ByPlatform = append(data.ByPlatform, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chart by platform: %w", err)
	}

	return data, nil
}

var sortColumns = map[string]string{
	"id":         "id",
	"identity":   "identity_key",
	"platform":   "platform",
	"product":    "product",
	"syncStatus": "sync_status",
	"scannedAt":  "scanned_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*pairing.Record, error) {
	var rec pairing.Record
	var syncError sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.IdentityKey,
		&rec.Platform,
		&rec.Product,
		&rec.ScannedAt,
		&rec.Overwrite,
		&rec.SyncStatus,
		&syncError,
	)
	if err != nil {
		return nil, err
	}
	if syncError.Valid {
		rec.SyncError = &syncError.String
	}
	return &rec, nil
}

func buildWhere(f pairing.Filter) (string, []any) {
	if f.ID != nil {
		return "WHERE id = $1", []any{*f.ID}
	}

	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Platform != nil {
		add("platform = $%d", *f.Platform)
	}
	if strings.TrimSpace(f.IdentityKey) != "" {
		add("identity_key ILIKE $%d", "%"+f.IdentityKey+"%")
	}
	if f.Product != nil {
		add("product = $%d", *f.Product)
	}
	if f.SyncStatus != nil {
		add("sync_status = $%d", string(*f.SyncStatus))
	}
	if f.Overwrite != nil {
		add("overwrite = $%d", *f.Overwrite)
	}
	if f.From != nil {
		add("scanned_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scanned_at <= $%d", *f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
