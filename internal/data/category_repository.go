package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CategoryRepository handles database operations for category nodes.
type CategoryRepository struct {
	DB *sqlx.DB
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{DB: db}
}

const categoryColumns = `id, vertical, name, parent_id, fields, created_at, updated_at`

// GetByID finds a category node by its ID. Returns ErrNotFound if the
// node does not exist. Lookup is unscoped so callers can distinguish a
// missing parent from one in the wrong vertical.
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*CategoryNode, error) {
	var node CategoryNode
	query := `SELECT ` + categoryColumns + ` FROM category_nodes WHERE id = ?`
	if err := r.DB.GetContext(ctx, &node, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category node by id: %w", err)
	}
	return &node, nil
}

// GetChildren retrieves the direct children of a node.
func (r *CategoryRepository) GetChildren(ctx context.Context, vertical Vertical, parentID string) ([]*CategoryNode, error) {
	var nodes []*CategoryNode
	query := `SELECT ` + categoryColumns + ` FROM category_nodes WHERE vertical = ? AND parent_id = ? ORDER BY name`
	if err := r.DB.SelectContext(ctx, &nodes, query, vertical, parentID); err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	return nodes, nil
}

// GetRoots retrieves every root node (parent_id IS NULL) in a vertical.
func (r *CategoryRepository) GetRoots(ctx context.Context, vertical Vertical) ([]*CategoryNode, error) {
	var nodes []*CategoryNode
	query := `SELECT ` + categoryColumns + ` FROM category_nodes WHERE vertical = ? AND parent_id IS NULL ORDER BY name`
	if err := r.DB.SelectContext(ctx, &nodes, query, vertical); err != nil {
		return nil, fmt.Errorf("failed to get root nodes: %w", err)
	}
	return nodes, nil
}

// ListByVertical retrieves every node in a vertical as a flat list.
func (r *CategoryRepository) ListByVertical(ctx context.Context, vertical Vertical) ([]*CategoryNode, error) {
	var nodes []*CategoryNode
	query := `SELECT ` + categoryColumns + ` FROM category_nodes WHERE vertical = ? ORDER BY name`
	if err := r.DB.SelectContext(ctx, &nodes, query, vertical); err != nil {
		return nil, fmt.Errorf("failed to list nodes for vertical: %w", err)
	}
	return nodes, nil
}

// Save inserts a new category node.
func (r *CategoryRepository) Save(ctx context.Context, node *CategoryNode) error {
	query := `INSERT INTO category_nodes (id, vertical, name, parent_id, fields, created_at, updated_at)
	          VALUES (:id, :vertical, :name, :parent_id, :fields, :created_at, :updated_at)`
	if _, err := r.DB.NamedExecContext(ctx, query, node); err != nil {
		return fmt.Errorf("failed to save category node: %w", err)
	}
	return nil
}

// Update persists name and field edits to an existing node.
func (r *CategoryRepository) Update(ctx context.Context, node *CategoryNode) error {
	query := `UPDATE category_nodes SET name = :name, fields = :fields, updated_at = :updated_at WHERE id = :id`
	result, err := r.DB.NamedExecContext(ctx, query, node)
	if err != nil {
		return fmt.Errorf("failed to update category node: %w", err)
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

// DeleteSubtree removes a node and every descendant inside a single
// transaction, children before parents, so a failure never leaves a node
// whose parent is gone.
func (r *CategoryRepository) DeleteSubtree(ctx context.Context, rootID string) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	// Collect the subtree breadth-first with an explicit queue. Iterative
	// rather than recursive so pathological depth cannot exhaust the stack
	// and ctx cancellation is honored between levels.
	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM category_nodes WHERE id = ?`, rootID); err != nil {
		return fmt.Errorf("failed to check subtree root: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	levels := [][]string{{rootID}}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		query, args, err := sqlx.In(`SELECT id FROM category_nodes WHERE parent_id IN (?)`, frontier)
		if err != nil {
			return fmt.Errorf("failed to build children query: %w", err)
		}
		var next []string
		if err := tx.SelectContext(ctx, &next, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to collect subtree level: %w", err)
		}
		if len(next) == 0 {
			break
		}
		levels = append(levels, next)
		frontier = next
	}

	// Delete deepest level first.
	for i := len(levels) - 1; i >= 0; i-- {
		query, args, err := sqlx.In(`DELETE FROM category_nodes WHERE id IN (?)`, levels[i])
		if err != nil {
			return fmt.Errorf("failed to build delete query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to delete subtree level: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subtree delete: %w", err)
	}
	return nil
}
