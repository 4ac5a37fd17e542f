package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CompanyRepository handles database operations for company profile records.
type CompanyRepository struct {
	DB *sqlx.DB
}

// NewCompanyRepository creates a new CompanyRepository.
func NewCompanyRepository(db *sqlx.DB) *CompanyRepository {
	return &CompanyRepository{DB: db}
}

const companyColumns = `id, owner_user_id, vertical, sub_vertical, category_node_id, payload, state,
	verification_status, is_featured, featured_expiry, is_promoted, promoted_expiry,
	is_refreshed, refresh_expiry, expiry_date, created_at, modified_at, version`

// Get retrieves one company record by id. Returns ErrNotFound if absent.
func (r *CompanyRepository) Get(ctx context.Context, id string) (*CompanyRecord, error) {
	var rec CompanyRecord
	query := `SELECT ` + companyColumns + ` FROM company_records WHERE id = ?`
	if err := r.DB.GetContext(ctx, &rec, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get company record: %w", err)
	}
	return &rec, nil
}

// Create inserts a new company record.
func (r *CompanyRepository) Create(ctx context.Context, rec *CompanyRecord) error {
	query := `INSERT INTO company_records (` + companyColumns + `)
	          VALUES (:id, :owner_user_id, :vertical, :sub_vertical, :category_node_id, :payload, :state,
	                  :verification_status, :is_featured, :featured_expiry, :is_promoted, :promoted_expiry,
	                  :is_refreshed, :refresh_expiry, :expiry_date, :created_at, :modified_at, :version)`
	if _, err := r.DB.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to create company record: %w", err)
	}
	return nil
}

// Update persists a record with a compare-and-swap on version, matching
// the ad repository contract.
func (r *CompanyRepository) Update(ctx context.Context, rec *CompanyRecord) error {
	query := `UPDATE company_records SET
	            owner_user_id = :owner_user_id, category_node_id = :category_node_id, payload = :payload,
	            state = :state, verification_status = :verification_status,
	            is_featured = :is_featured, featured_expiry = :featured_expiry,
	            is_promoted = :is_promoted, promoted_expiry = :promoted_expiry,
	            is_refreshed = :is_refreshed, refresh_expiry = :refresh_expiry,
	            expiry_date = :expiry_date, modified_at = :modified_at, version = :version + 1
	          WHERE id = :id AND version = :version`
	result, err := r.DB.NamedExecContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("failed to update company record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists int
		if err := r.DB.GetContext(ctx, &exists, `SELECT COUNT(*) FROM company_records WHERE id = ?`, rec.ID); err != nil {
			return fmt.Errorf("failed to check company record existence: %w", err)
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
func (r *CompanyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM company_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete company record: %w", err)
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

// ListLapsed retrieves company records whose stored flags or state lag
// behind the clock, matching the ad repository contract.
func (r *CompanyRepository) ListLapsed(ctx context.Context, now time.Time) ([]*CompanyRecord, error) {
	var recs []*CompanyRecord
	query := `SELECT ` + companyColumns + ` FROM company_records WHERE
	            (is_featured = true AND featured_expiry < ?) OR
	            (is_promoted = true AND promoted_expiry < ?) OR
	            (is_refreshed = true AND refresh_expiry < ?) OR
	            ((is_featured = true OR is_promoted = true OR is_refreshed = true) AND state <> ?) OR
	            (expiry_date < ? AND state NOT IN (?, ?))`
	if err := r.DB.SelectContext(ctx, &recs, query, now, now, now, StatePublished, now, StateExpired, StateRejected); err != nil {
		return nil, fmt.Errorf("failed to list lapsed company records: %w", err)
	}
	return recs, nil
}

// ListByOwner retrieves all company records owned by a user.
func (r *CompanyRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]*CompanyRecord, error) {
	var recs []*CompanyRecord
	query := `SELECT ` + companyColumns + ` FROM company_records WHERE owner_user_id = ? ORDER BY created_at DESC`
	if err := r.DB.SelectContext(ctx, &recs, query, ownerUserID); err != nil {
		return nil, fmt.Errorf("failed to list company records by owner: %w", err)
	}
	return recs, nil
}
