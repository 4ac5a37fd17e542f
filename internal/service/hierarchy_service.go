package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-classifieds-app/internal/apperr"
	"go-classifieds-app/internal/data"
	"go-classifieds-app/internal/logger"
	"go-classifieds-app/internal/metrics"
)

// CategoryRepository defines the interface for database operations on
// category nodes.
type CategoryRepository interface {
	GetByID(ctx context.Context, id string) (*data.CategoryNode, error)
	GetChildren(ctx context.Context, vertical data.Vertical, parentID string) ([]*data.CategoryNode, error)
	GetRoots(ctx context.Context, vertical data.Vertical) ([]*data.CategoryNode, error)
	ListByVertical(ctx context.Context, vertical data.Vertical) ([]*data.CategoryNode, error)
	Save(ctx context.Context, node *data.CategoryNode) error
	Update(ctx context.Context, node *data.CategoryNode) error
	DeleteSubtree(ctx context.Context, rootID string) error
}

// FieldCache memoizes resolved attribute sets between category edits.
type FieldCache interface {
	GetFields(key string) ([]data.AttributeField, bool, error)
	SetFields(key string, fields []data.AttributeField) error
	DeletePrefix(prefix string) error
}

// noopFieldCache is used when no cache is wired (tests).
type noopFieldCache struct{}

func (noopFieldCache) GetFields(string) ([]data.AttributeField, bool, error) { return nil, false, nil }
func (noopFieldCache) SetFields(string, []data.AttributeField) error         { return nil }
func (noopFieldCache) DeletePrefix(string) error                             { return nil }

// CategoryTree is a materialized subtree: each node annotated with the
// attribute set it inherits from its ancestors.
type CategoryTree struct {
	Node           *data.CategoryNode    `json:"node"`
	ResolvedFields []data.AttributeField `json:"resolved_fields"`
	Children       []*CategoryTree       `json:"children"`
}

// HierarchyService provides the category tree operations: subtree
// creation, materialization, cascading deletion and attribute-set
// resolution.
type HierarchyService struct {
	repo    CategoryRepository
	cache   FieldCache
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewHierarchyService creates a new HierarchyService. A nil cache
// disables memoization.
func NewHierarchyService(repo CategoryRepository, cache FieldCache, m *metrics.Metrics, log logger.Logger) *HierarchyService {
	if cache == nil {
		cache = noopFieldCache{}
	}
	return &HierarchyService{repo: repo, cache: cache, metrics: m, log: log}
}

func fieldCacheKey(vertical data.Vertical, nodeID string) string {
	return fmt.Sprintf("fields:%s:%s", vertical, nodeID)
}

// CreateNode creates a category node under the given parent (nil parent
// makes a root). The parent must exist and share the vertical; duplicate
// sibling names are permitted.
func (s *HierarchyService) CreateNode(ctx context.Context, vertical data.Vertical, name string, parentID *string, fields []data.AttributeField) (*data.CategoryNode, error) {
	if !vertical.Valid() {
		return nil, apperr.New(apperr.InvalidParent, "unknown vertical %q", vertical)
	}
	if name == "" {
		return nil, apperr.New(apperr.InvalidParent, "category name must not be empty")
	}

	if parentID != nil {
		parent, err := s.repo.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, data.ErrNotFound) {
				return nil, apperr.Wrap(apperr.NotFound, err, "parent category %s not found", *parentID)
			}
			return nil, apperr.Wrap(apperr.Unexpected, err, "failed to load parent category")
		}
		if parent.Vertical != vertical {
			return nil, apperr.New(apperr.InvalidParent, "parent %s belongs to vertical %s, not %s", *parentID, parent.Vertical, vertical)
		}
		// Guard the tree invariant even against corrupt parent chains: the
		// walk to the root must terminate without revisiting a node.
		if err := s.checkAncestorChain(ctx, parent); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	node := &data.CategoryNode{
		ID:        uuid.NewString(),
		Vertical:  vertical,
		Name:      name,
		ParentID:  parentID,
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Save(ctx, node); err != nil {
		s.metrics.TreeMutations.WithLabelValues("create", "error").Inc()
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to save category node")
	}
	s.metrics.TreeMutations.WithLabelValues("create", "ok").Inc()
	s.invalidateVertical(vertical)
	return node, nil
}

// UpdateNode edits a node's name and field definitions. Structure (parent
// links) is immutable after creation; subtrees change only by whole-tree
// deletion.
func (s *HierarchyService) UpdateNode(ctx context.Context, vertical data.Vertical, nodeID, name string, fields []data.AttributeField) (*data.CategoryNode, error) {
	node, err := s.getInVertical(ctx, vertical, nodeID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		node.Name = name
	}
	if fields != nil {
		node.Fields = fields
	}
	node.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, node); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.Wrap(apperr.NotFound, err, "category %s not found", nodeID)
		}
		s.metrics.TreeMutations.WithLabelValues("update", "error").Inc()
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to update category node")
	}
	s.metrics.TreeMutations.WithLabelValues("update", "ok").Inc()
	s.invalidateVertical(vertical)
	return node, nil
}

// GetChildren returns the direct children of a node. A childless parent
// yields an empty list, not an error.
func (s *HierarchyService) GetChildren(ctx context.Context, vertical data.Vertical, parentID string) ([]*data.CategoryNode, error) {
	if _, err := s.getInVertical(ctx, vertical, parentID); err != nil {
		return nil, err
	}
	children, err := s.repo.GetChildren(ctx, vertical, parentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to load children")
	}
	if children == nil {
		children = []*data.CategoryNode{}
	}
	return children, nil
}

// GetTree materializes the subtree rooted at rootID, each node annotated
// with its resolved attribute set.
func (s *HierarchyService) GetTree(ctx context.Context, vertical data.Vertical, rootID string) (*CategoryTree, error) {
	root, err := s.getInVertical(ctx, vertical, rootID)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.ListByVertical(ctx, vertical)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to list vertical nodes")
	}

	// The root's resolution pays for the ancestor walk once; descendants
	// extend it level by level during the build.
	rootFields, err := s.GetResolvedFields(ctx, vertical, rootID)
	if err != nil {
		return nil, err
	}
	return s.buildTree(ctx, root, rootFields, childIndex(all))
}

// GetAllTrees materializes one tree per root node in the vertical.
func (s *HierarchyService) GetAllTrees(ctx context.Context, vertical data.Vertical) ([]*CategoryTree, error) {
	roots, err := s.repo.GetRoots(ctx, vertical)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to load root nodes")
	}
	all, err := s.repo.ListByVertical(ctx, vertical)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to list vertical nodes")
	}
	index := childIndex(all)

	trees := make([]*CategoryTree, 0, len(roots))
	for _, root := range roots {
		tree, err := s.buildTree(ctx, root, mergeFields(nil, root.Fields), index)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

// DeleteTree deletes a node and every descendant. The cascade runs in one
// store transaction, so a failure leaves the whole subtree in place.
func (s *HierarchyService) DeleteTree(ctx context.Context, vertical data.Vertical, nodeID string) error {
	if _, err := s.getInVertical(ctx, vertical, nodeID); err != nil {
		return err
	}
	if err := s.repo.DeleteSubtree(ctx, nodeID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return apperr.Wrap(apperr.NotFound, err, "category %s not found", nodeID)
		}
		s.metrics.TreeMutations.WithLabelValues("delete", "error").Inc()
		return apperr.Wrap(apperr.Unexpected, err, "failed to delete subtree")
	}
	s.metrics.TreeMutations.WithLabelValues("delete", "ok").Inc()
	s.invalidateVertical(vertical)
	return nil
}

// GetResolvedFields walks from the node to its vertical root and returns
// the inherited attribute set: ancestor declaration order preserved, a
// closer node winning on name collision. Descendants' own fields are
// never pulled upward.
func (s *HierarchyService) GetResolvedFields(ctx context.Context, vertical data.Vertical, nodeID string) ([]data.AttributeField, error) {
	key := fieldCacheKey(vertical, nodeID)
	if cached, ok, err := s.cache.GetFields(key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.log.Error(err, "Field cache read failed")
	}

	node, err := s.getInVertical(ctx, vertical, nodeID)
	if err != nil {
		return nil, err
	}

	// Collect the ancestor chain root-first with an iterative walk.
	chain, err := s.ancestorChain(ctx, node)
	if err != nil {
		return nil, err
	}

	resolved := []data.AttributeField{}
	for _, n := range chain {
		resolved = mergeFields(resolved, n.Fields)
	}

	if err := s.cache.SetFields(key, resolved); err != nil {
		s.log.Error(err, "Field cache write failed")
	}
	return resolved, nil
}

// getInVertical loads a node and verifies it belongs to the vertical; a
// node filed elsewhere reads as absent within this vertical.
func (s *HierarchyService) getInVertical(ctx context.Context, vertical data.Vertical, nodeID string) (*data.CategoryNode, error) {
	node, err := s.repo.GetByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.Wrap(apperr.NotFound, err, "category %s not found", nodeID)
		}
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to load category node")
	}
	if node.Vertical != vertical {
		return nil, apperr.New(apperr.NotFound, "category %s not found in vertical %s", nodeID, vertical)
	}
	return node, nil
}

// ancestorChain returns the path root→…→node. The walk is iterative with
// a visited set, so a corrupt parent loop fails instead of spinning.
func (s *HierarchyService) ancestorChain(ctx context.Context, node *data.CategoryNode) ([]*data.CategoryNode, error) {
	chain := []*data.CategoryNode{node}
	visited := map[string]bool{node.ID: true}
	current := node
	for current.ParentID != nil {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Unexpected, err, "ancestor walk canceled")
		}
		parent, err := s.repo.GetByID(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, data.ErrNotFound) {
				return nil, apperr.Wrap(apperr.Unexpected, err, "category %s has dangling parent %s", current.ID, *current.ParentID)
			}
			return nil, apperr.Wrap(apperr.Unexpected, err, "failed to walk ancestor chain")
		}
		if visited[parent.ID] {
			return nil, apperr.New(apperr.InvalidParent, "parent chain of %s contains a cycle", node.ID)
		}
		visited[parent.ID] = true
		chain = append([]*data.CategoryNode{parent}, chain...)
		current = parent
	}
	return chain, nil
}

// checkAncestorChain validates that a prospective parent's chain reaches a
// root without cycling.
func (s *HierarchyService) checkAncestorChain(ctx context.Context, parent *data.CategoryNode) error {
	_, err := s.ancestorChain(ctx, parent)
	return err
}

// buildTree materializes the subtree under root using an explicit stack
// instead of recursion, carrying the resolved field set downward.
// rootResolved is the root's already-resolved attribute set.
func (s *HierarchyService) buildTree(ctx context.Context, root *data.CategoryNode, rootResolved []data.AttributeField, children map[string][]*data.CategoryNode) (*CategoryTree, error) {
	type frame struct {
		node      *data.CategoryNode
		inherited []data.AttributeField
		tree      *CategoryTree
	}

	rootTree := &CategoryTree{Node: root, ResolvedFields: rootResolved, Children: []*CategoryTree{}}
	stack := []frame{{node: root, inherited: rootTree.ResolvedFields, tree: rootTree}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Unexpected, err, "tree walk canceled")
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range children[top.node.ID] {
			childTree := &CategoryTree{
				Node:           child,
				ResolvedFields: mergeFields(top.inherited, child.Fields),
				Children:       []*CategoryTree{},
			}
			top.tree.Children = append(top.tree.Children, childTree)
			stack = append(stack, frame{node: child, inherited: childTree.ResolvedFields, tree: childTree})
		}
	}
	return rootTree, nil
}

// mergeFields appends own fields onto an inherited set: declaration order
// is preserved and an own field replaces an inherited one of the same
// name in place.
func mergeFields(inherited []data.AttributeField, own []data.AttributeField) []data.AttributeField {
	merged := make([]data.AttributeField, len(inherited))
	copy(merged, inherited)
	for _, f := range own {
		replaced := false
		for i := range merged {
			if merged[i].Name == f.Name {
				merged[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, f)
		}
	}
	return merged
}

// childIndex groups nodes by parent id for in-memory tree assembly.
func childIndex(nodes []*data.CategoryNode) map[string][]*data.CategoryNode {
	index := make(map[string][]*data.CategoryNode)
	for _, n := range nodes {
		if n.ParentID != nil {
			index[*n.ParentID] = append(index[*n.ParentID], n)
		}
	}
	return index
}

func (s *HierarchyService) invalidateVertical(vertical data.Vertical) {
	if err := s.cache.DeletePrefix(fieldCacheKey(vertical, "")); err != nil {
		s.log.Error(err, "Field cache invalidation failed")
	}
}
