package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AdRepository handles database operations for ad lifecycle records.
type AdRepository struct {
	DB *sqlx.DB
}

// NewAdRepository creates a new AdRepository.
func NewAdRepository(db *sqlx.DB) *AdRepository {
	return &AdRepository{DB: db}
}

const adColumns = `id, owner_user_id, vertical, sub_vertical, category_node_id, payload, state,
	is_featured, featured_expiry, is_promoted, promoted_expiry, is_refreshed, refresh_expiry,
	expiry_date, created_at, modified_at, version`

// Get retrieves one ad record by id. Returns ErrNotFound if absent.
func (r *AdRepository) Get(ctx context.Context, id string) (*AdRecord, error) {
	var rec AdRecord
	query := `SELECT ` + adColumns + ` FROM ad_records WHERE id = ?`
	if err := r.DB.GetContext(ctx, &rec, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ad record: %w", err)
	}
	return &rec, nil
}

// Create inserts a new ad record.
func (r *AdRepository) Create(ctx context.Context, rec *AdRecord) error {
	query := `INSERT INTO ad_records (` + adColumns + `)
	          VALUES (:id, :owner_user_id, :vertical, :sub_vertical, :category_node_id, :payload, :state,
	                  :is_featured, :featured_expiry, :is_promoted, :promoted_expiry, :is_refreshed, :refresh_expiry,
	                  :expiry_date, :created_at, :modified_at, :version)`
	if _, err := r.DB.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to create ad record: %w", err)
	}
	return nil
}

// Update persists a record with a compare-and-swap on version. The stored
// version is incremented on success. Returns ErrVersionConflict when the
// row exists at a different version and ErrNotFound when it is gone.
func (r *AdRepository) Update(ctx context.Context, rec *AdRecord) error {
	query := `UPDATE ad_records SET
	            owner_user_id = :owner_user_id, category_node_id = :category_node_id, payload = :payload,
	            state = :state, is_featured = :is_featured, featured_expiry = :featured_expiry,
	            is_promoted = :is_promoted, promoted_expiry = :promoted_expiry,
	            is_refreshed = :is_refreshed, refresh_expiry = :refresh_expiry,
	            expiry_date = :expiry_date, modified_at = :modified_at, version = :version + 1
	          WHERE id = :id AND version = :version`
	result, err := r.DB.NamedExecContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("failed to update ad record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists int
		if err := r.DB.GetContext(ctx, &exists, `SELECT COUNT(*) FROM ad_records WHERE id = ?`, rec.ID); err != nil {
			return fmt.Errorf("failed to check ad record existence: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	rec.Version++
	return nil
}

// Delete removes a record permanently. Returns ErrNotFound if absent.
func (r *AdRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM ad_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ad record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner retrieves all records owned by a user, newest first.
func (r *AdRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]*AdRecord, error) {
	var recs []*AdRecord
	query := `SELECT ` + adColumns + ` FROM ad_records WHERE owner_user_id = ? ORDER BY created_at DESC`
	if err := r.DB.SelectContext(ctx, &recs, query, ownerUserID); err != nil {
		return nil, fmt.Errorf("failed to list ad records by owner: %w", err)
	}
	return recs, nil
}

// ListLapsed retrieves records whose stored flags or state lag behind the
// clock: a feature/promote/refresh window that has ended, a flag left set
// on a record that is no longer published, or an expiry date that has
// passed on a live record. Used by the periodic sweep.
func (r *AdRepository) ListLapsed(ctx context.Context, now time.Time) ([]*AdRecord, error) {
	var recs []*AdRecord
	query := `SELECT ` + adColumns + ` FROM ad_records WHERE
	            (is_featured = true AND featured_expiry < ?) OR
	            (is_promoted = true AND promoted_expiry < ?) OR
	            (is_refreshed = true AND refresh_expiry < ?) OR
	            ((is_featured = true OR is_promoted = true OR is_refreshed = true) AND state <> ?) OR
	            (expiry_date < ? AND state NOT IN (?, ?))`
	if err := r.DB.SelectContext(ctx, &recs, query, now, now, now, StatePublished, now, StateExpired, StateRejected); err != nil {
		return nil, fmt.Errorf("failed to list lapsed ad records: %w", err)
	}
	return recs, nil
}
