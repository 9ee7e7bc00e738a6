// Package sqlite provides an embedded ledger store for single-node
// deployments, using the pure Go modernc.org/sqlite driver. Same schema
// and conditional-write semantics as the Postgres store; SQLite's single
// writer makes the transaction side trivial while the version predicate
// still guards against interleaved read-modify-write cycles.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Kerhoff/WishPool/internal/models"
	"github.com/Kerhoff/WishPool/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS wishlist_items (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    url               TEXT NOT NULL DEFAULT '',
    notes             TEXT NOT NULL DEFAULT '',
    target_cost       TEXT NOT NULL,
    mode              TEXT NOT NULL,
    partial_allowed   INTEGER NOT NULL DEFAULT 0,
    total_contributed TEXT NOT NULL DEFAULT '0',
    claimed           INTEGER NOT NULL DEFAULT 0,
    status            TEXT NOT NULL,
    version           INTEGER NOT NULL DEFAULT 1,
    created_at        TIMESTAMP NOT NULL,
    updated_at        TIMESTAMP NOT NULL,
    deleted_at        TIMESTAMP
);

CREATE TABLE IF NOT EXISTS contribution_records (
    seq              INTEGER PRIMARY KEY AUTOINCREMENT,
    id               TEXT NOT NULL UNIQUE,
    item_id          TEXT NOT NULL,
    contributor_id   TEXT NOT NULL,
    contributor_name TEXT NOT NULL DEFAULT '',
    amount           TEXT,
    idempotency_key  TEXT,
    created_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contribution_records_item
    ON contribution_records (item_id, seq);

CREATE UNIQUE INDEX IF NOT EXISTS uq_contribution_records_item_idem
    ON contribution_records (item_id, idempotency_key)
    WHERE idempotency_key IS NOT NULL;
`

const itemColumns = `id, name, url, notes, target_cost, mode, partial_allowed, total_contributed, claimed, status, version, created_at, updated_at`

type ledgerStore struct {
	db *sql.DB
}

var _ repository.LedgerStore = (*ledgerStore)(nil)

// NewLedgerStore opens (or creates) the database at path and applies the
// schema. Monetary columns are TEXT so decimals round-trip exactly.
func NewLedgerStore(path string) (repository.LedgerStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer; serialize our access instead of
	// surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &ledgerStore{db: db}, nil
}

func (r *ledgerStore) Create(ctx context.Context, item *models.WishlistItem) error {
	query := `
		INSERT INTO wishlist_items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		item.ID,
		item.Name,
		item.URL,
		item.Notes,
		item.TargetCost.String(),
		string(item.Mode),
		item.PartialAllowed,
		item.TotalContributed.String(),
		item.Claimed,
		string(item.Status),
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return wrapUnavailable("create item", err)
	}

	item.Version = 1
	return nil
}

func (r *ledgerStore) Get(ctx context.Context, itemID string) (*models.WishlistItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM wishlist_items
		WHERE id = ? AND deleted_at IS NULL`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, wrapUnavailable("get item", err)
	}
	return item, nil
}

func (r *ledgerStore) List(ctx context.Context) ([]*models.WishlistItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM wishlist_items
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapUnavailable("list items", err)
	}
	defer rows.Close()

	var items []*models.WishlistItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapUnavailable("scan item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *ledgerStore) CompareAndSet(ctx context.Context, itemID string, expectedVersion int64, item *models.WishlistItem, record *models.ContributionRecord) (*models.WishlistItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapUnavailable("begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE wishlist_items
		SET name = ?, url = ?, notes = ?, target_cost = ?, mode = ?,
		    partial_allowed = ?, total_contributed = ?, claimed = ?,
		    status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		item.Name,
		item.URL,
		item.Notes,
		item.TargetCost.String(),
		string(item.Mode),
		item.PartialAllowed,
		item.TotalContributed.String(),
		item.Claimed,
		string(item.Status),
		time.Now().UTC(),
		itemID,
		expectedVersion,
	)
	if err != nil {
		return nil, wrapUnavailable("conditional update", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, wrapUnavailable("rows affected", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM wishlist_items WHERE id = ? AND deleted_at IS NULL)`,
			itemID,
		).Scan(&exists); err != nil {
			return nil, wrapUnavailable("conflict probe", err)
		}
		if !exists {
			return nil, repository.ErrNotFound
		}
		return nil, repository.ErrVersionMismatch
	}

	if record != nil {
		var amount, key any
		if record.Amount.Valid {
			amount = record.Amount.Decimal.String()
		}
		if record.IdempotencyKey != "" {
			key = record.IdempotencyKey
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contribution_records (id, item_id, contributor_id, contributor_name, amount, idempotency_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			itemID,
			record.ContributorID,
			record.ContributorName,
			amount,
			key,
			record.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, repository.ErrDuplicateKey
			}
			return nil, wrapUnavailable("append record", err)
		}
	}

	committed, err := scanItem(tx.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM wishlist_items
		WHERE id = ?`, itemID))
	if err != nil {
		return nil, wrapUnavailable("reread item", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapUnavailable("commit", err)
	}
	return committed, nil
}

func (r *ledgerStore) Delete(ctx context.Context, itemID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wishlist_items
		SET deleted_at = ?, version = version + 1
		WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), itemID,
	)
	if err != nil {
		return wrapUnavailable("delete item", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapUnavailable("rows affected", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ledgerStore) Log(ctx context.Context, itemID string) ([]*models.ContributionRecord, error) {
	query := `
		SELECT id, item_id, contributor_id, contributor_name, amount, COALESCE(idempotency_key, ''), created_at
		FROM contribution_records
		WHERE item_id = ?
		ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, wrapUnavailable("query log", err)
	}
	defer rows.Close()

	var records []*models.ContributionRecord
	for rows.Next() {
		rec := &models.ContributionRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.ItemID,
			&rec.ContributorID,
			&rec.ContributorName,
			&rec.Amount,
			&rec.IdempotencyKey,
			&rec.CreatedAt,
		); err != nil {
			return nil, wrapUnavailable("scan record", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *ledgerStore) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.WishlistItem, error) {
	item := &models.WishlistItem{}
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.URL,
		&item.Notes,
		&item.TargetCost,
		&item.Mode,
		&item.PartialAllowed,
		&item.TotalContributed,
		&item.Claimed,
		&item.Status,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", repository.ErrUnavailable, op, err)
}
