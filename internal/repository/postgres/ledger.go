package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Kerhoff/WishPool/internal/models"
	"github.com/Kerhoff/WishPool/internal/repository"
)

const itemColumns = `id, name, url, notes, target_cost, mode, partial_allowed, total_contributed, claimed, status, version, created_at, updated_at`

type ledgerStore struct {
	db *sql.DB
}

var _ repository.LedgerStore = (*ledgerStore)(nil)

// NewLedgerStore creates a Postgres-backed ledger store. The schema is
// managed by the migrations in migrations/.
func NewLedgerStore(db *sql.DB) repository.LedgerStore {
	return &ledgerStore{db: db}
}

func (r *ledgerStore) Create(ctx context.Context, item *models.WishlistItem) error {
	query := `
		INSERT INTO wishlist_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		item.ID,
		item.Name,
		item.URL,
		item.Notes,
		item.TargetCost,
		item.Mode,
		item.PartialAllowed,
		item.TotalContributed,
		item.Claimed,
		item.Status,
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
		WHERE id = $1 AND deleted_at IS NULL`

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

// CompareAndSet runs the conditional item update and the optional record
// append in one transaction. The UPDATE's version predicate is the whole
// concurrency story: when it matches zero rows, either a concurrent
// writer got there first or the item is gone, and a follow-up SELECT
// tells the two apart.
func (r *ledgerStore) CompareAndSet(ctx context.Context, itemID string, expectedVersion int64, item *models.WishlistItem, record *models.ContributionRecord) (*models.WishlistItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapUnavailable("begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE wishlist_items
		SET name = $3, url = $4, notes = $5, target_cost = $6, mode = $7,
		    partial_allowed = $8, total_contributed = $9, claimed = $10,
		    status = $11, updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL`,
		itemID,
		expectedVersion,
		item.Name,
		item.URL,
		item.Notes,
		item.TargetCost,
		item.Mode,
		item.PartialAllowed,
		item.TotalContributed,
		item.Claimed,
		item.Status,
		now,
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
			`SELECT EXISTS (SELECT 1 FROM wishlist_items WHERE id = $1 AND deleted_at IS NULL)`,
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
		var key sql.NullString
		if record.IdempotencyKey != "" {
			key = sql.NullString{String: record.IdempotencyKey, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contribution_records (id, item_id, contributor_id, contributor_name, amount, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			record.ID,
			itemID,
			record.ContributorID,
			record.ContributorName,
			record.Amount,
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
		WHERE id = $1`, itemID))
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
		SET deleted_at = $2, version = version + 1
		WHERE id = $1 AND deleted_at IS NULL`,
		itemID, time.Now().UTC(),
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
	// seq is assigned at append time under the item's row lock, so seq
	// order is commit order per item.
	query := `
		SELECT id, item_id, contributor_id, contributor_name, amount, COALESCE(idempotency_key, ''), created_at
		FROM contribution_records
		WHERE item_id = $1
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

// rowScanner covers *sql.Row and *sql.Rows.
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
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", repository.ErrUnavailable, op, err)
}
