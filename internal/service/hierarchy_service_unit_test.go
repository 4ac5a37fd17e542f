//go:build unit

package service

import (
	"context"
	"io"
	"testing"
	"time"

	"go-classifieds-app/internal/apperr"
	"go-classifieds-app/internal/config"
	"go-classifieds-app/internal/data"
	"go-classifieds-app/internal/logger"
	"go-classifieds-app/internal/metrics"
)

// treeRepo is an in-memory CategoryRepository.
type treeRepo struct {
	nodes         map[string]*data.CategoryNode
	deletedRootID string
}

var _ CategoryRepository = (*treeRepo)(nil)

func newTreeRepo() *treeRepo {
	return &treeRepo{nodes: make(map[string]*data.CategoryNode)}
}

func (r *treeRepo) GetByID(ctx context.Context, id string) (*data.CategoryNode, error) {
	node, ok := r.nodes[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return node, nil
}

func (r *treeRepo) GetChildren(ctx context.Context, vertical data.Vertical, parentID string) ([]*data.CategoryNode, error) {
	var out []*data.CategoryNode
	for _, n := range r.nodes {
		if n.Vertical == vertical && n.ParentID != nil && *n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *treeRepo) GetRoots(ctx context.Context, vertical data.Vertical) ([]*data.CategoryNode, error) {
	var out []*data.CategoryNode
	for _, n := range r.nodes {
		if n.Vertical == vertical && n.ParentID == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *treeRepo) ListByVertical(ctx context.Context, vertical data.Vertical) ([]*data.CategoryNode, error) {
	var out []*data.CategoryNode
	for _, n := range r.nodes {
		if n.Vertical == vertical {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *treeRepo) Save(ctx context.Context, node *data.CategoryNode) error {
	r.nodes[node.ID] = node
	return nil
}

func (r *treeRepo) Update(ctx context.Context, node *data.CategoryNode) error {
	if _, ok := r.nodes[node.ID]; !ok {
		return data.ErrNotFound
	}
	r.nodes[node.ID] = node
	return nil
}

func (r *treeRepo) DeleteSubtree(ctx context.Context, rootID string) error {
	if _, ok := r.nodes[rootID]; !ok {
		return data.ErrNotFound
	}
	r.deletedRootID = rootID
	// Cascade like the SQL implementation does.
	removed := map[string]bool{rootID: true}
	delete(r.nodes, rootID)
	for changed := true; changed; {
		changed = false
		for id, n := range r.nodes {
			if n.ParentID != nil && removed[*n.ParentID] {
				removed[id] = true
				delete(r.nodes, id)
				changed = true
			}
		}
	}
	return nil
}

func newTestHierarchy(repo *treeRepo) *HierarchyService {
	log := logger.New(config.LogConfig{Level: "error", Format: "json"}, io.Discard)
	return NewHierarchyService(repo, nil, metrics.NewUnregistered(), log)
}

func seedNode(repo *treeRepo, id string, vertical data.Vertical, name string, parentID *string, fields ...data.AttributeField) *data.CategoryNode {
	node := &data.CategoryNode{
		ID:        id,
		Vertical:  vertical,
		Name:      name,
		ParentID:  parentID,
		Fields:    fields,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	repo.nodes[id] = node
	return node
}

func strPtr(s string) *string { return &s }

func TestCreateNodeRoot(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)

	node, err := svc.CreateNode(context.Background(), data.VerticalItems, "Electronics", nil,
		[]data.AttributeField{{Name: "condition", Type: data.FieldSelect, Options: []string{"new", "used"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.ID == "" {
		t.Error("expected a generated id")
	}
	if node.ParentID != nil {
		t.Error("expected a root node")
	}
	if _, ok := repo.nodes[node.ID]; !ok {
		t.Error("expected the node to be saved")
	}
}

func TestCreateNodeUnderMissingParent(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)

	_, err := svc.CreateNode(context.Background(), data.VerticalItems, "Phones", strPtr("nope"), nil)
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestCreateNodeRejectsCrossVerticalParent(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)
	seedNode(repo, "svc-root", data.VerticalServices, "Repairs", nil)

	_, err := svc.CreateNode(context.Background(), data.VerticalItems, "Phones", strPtr("svc-root"), nil)
	if apperr.KindOf(err) != apperr.InvalidParent {
		t.Errorf("expected InvalidParent, got %v", err)
	}
}

func TestResolvedFieldsInheritAndOverride(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)

	fieldA := data.AttributeField{Name: "condition", Type: data.FieldSelect, Options: []string{"new", "used"}}
	fieldB := data.AttributeField{Name: "brand", Type: data.FieldText}
	fieldAPrime := data.AttributeField{Name: "condition", Type: data.FieldSelect, Options: []string{"mint", "worn"}}
	fieldC := data.AttributeField{Name: "storage", Type: data.FieldNumber}

	seedNode(repo, "root", data.VerticalItems, "Electronics", nil, fieldA, fieldB)
	seedNode(repo, "mid", data.VerticalItems, "Phones", strPtr("root"), fieldAPrime)
	seedNode(repo, "leaf", data.VerticalItems, "Smartphones", strPtr("mid"), fieldC)

	fields, err := svc.GetResolvedFields(context.Background(), data.VerticalItems, "leaf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("expected 3 resolved fields, got %d: %v", len(fields), fields)
	}
	// A child's redeclaration replaces the ancestor's field in place, so
	// the ancestor ordering survives.
	if fields[0].Name != "condition" || fields[0].Options[0] != "mint" {
		t.Errorf("expected the overridden condition field first, got %+v", fields[0])
	}
	if fields[1].Name != "brand" {
		t.Errorf("expected brand second, got %+v", fields[1])
	}
	if fields[2].Name != "storage" {
		t.Errorf("expected storage last, got %+v", fields[2])
	}
}

func TestResolvedFieldsOnRoot(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)
	seedNode(repo, "root", data.VerticalItems, "Electronics", nil,
		data.AttributeField{Name: "condition", Type: data.FieldText})

	fields, err := svc.GetResolvedFields(context.Background(), data.VerticalItems, "root")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 1 || fields[0].Name != "condition" {
		t.Errorf("expected the root's own fields, got %v", fields)
	}
}

func TestResolvedFieldsWrongVertical(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)
	seedNode(repo, "root", data.VerticalItems, "Electronics", nil)

	_, err := svc.GetResolvedFields(context.Background(), data.VerticalServices, "root")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("expected NotFound for a cross-vertical read, got %v", err)
	}
}

func TestGetTreeMaterializesSubtree(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)
	seedNode(repo, "root", data.VerticalItems, "Electronics", nil,
		data.AttributeField{Name: "condition", Type: data.FieldText})
	seedNode(repo, "phones", data.VerticalItems, "Phones", strPtr("root"),
		data.AttributeField{Name: "brand", Type: data.FieldText})
	seedNode(repo, "laptops", data.VerticalItems, "Laptops", strPtr("root"))
	seedNode(repo, "smart", data.VerticalItems, "Smartphones", strPtr("phones"))

	tree, err := svc.GetTree(context.Background(), data.VerticalItems, "root")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Node.ID != "root" {
		t.Fatalf("expected root at the top, got %s", tree.Node.ID)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected two children, got %d", len(tree.Children))
	}
	var phones *CategoryTree
	for _, c := range tree.Children {
		if c.Node.ID == "phones" {
			phones = c
		}
	}
	if phones == nil {
		t.Fatal("expected phones under root")
	}
	if len(phones.Children) != 1 || phones.Children[0].Node.ID != "smart" {
		t.Fatalf("expected smart under phones, got %+v", phones.Children)
	}
	if len(phones.ResolvedFields) != 2 {
		t.Errorf("expected phones to inherit condition and declare brand, got %v", phones.ResolvedFields)
	}
	if len(phones.Children[0].ResolvedFields) != 2 {
		t.Errorf("expected smart to inherit both fields, got %v", phones.Children[0].ResolvedFields)
	}
}

func TestGetAllTrees(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)
	seedNode(repo, "a", data.VerticalItems, "Electronics", nil)
	seedNode(repo, "b", data.VerticalItems, "Furniture", nil)
	seedNode(repo, "other", data.VerticalServices, "Repairs", nil)

	trees, err := svc.GetAllTrees(context.Background(), data.VerticalItems)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trees) != 2 {
		t.Errorf("expected two roots in the items vertical, got %d", len(trees))
	}
}

func TestGetChildrenOfMissingParent(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)

	_, err := svc.GetChildren(context.Background(), data.VerticalItems, "nope")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestGetChildrenOfLeafIsEmpty(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)
	seedNode(repo, "leaf", data.VerticalItems, "Lamps", nil)

	children, err := svc.GetChildren(context.Background(), data.VerticalItems, "leaf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("expected no children, got %d", len(children))
	}
}

func TestDeleteTreeCascades(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)
	seedNode(repo, "root", data.VerticalItems, "Electronics", nil)
	seedNode(repo, "phones", data.VerticalItems, "Phones", strPtr("root"))
	seedNode(repo, "smart", data.VerticalItems, "Smartphones", strPtr("phones"))
	seedNode(repo, "bystander", data.VerticalItems, "Furniture", nil)

	if err := svc.DeleteTree(context.Background(), data.VerticalItems, "phones"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.deletedRootID != "phones" {
		t.Errorf("expected the subtree rooted at phones to be deleted, got %q", repo.deletedRootID)
	}
	if _, ok := repo.nodes["smart"]; ok {
		t.Error("expected descendants to be gone")
	}
	if _, ok := repo.nodes["root"]; !ok {
		t.Error("expected the parent to survive")
	}
	if _, ok := repo.nodes["bystander"]; !ok {
		t.Error("expected unrelated roots to survive")
	}
}

func TestUpdateNodeReplacesFields(t *testing.T) {
	repo := newTreeRepo()
	svc := newTestHierarchy(repo)
	seedNode(repo, "root", data.VerticalItems, "Electronics", nil,
		data.AttributeField{Name: "condition", Type: data.FieldText})

	node, err := svc.UpdateNode(context.Background(), data.VerticalItems, "root", "Gadgets",
		[]data.AttributeField{{Name: "warranty", Type: data.FieldBoolean}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Name != "Gadgets" {
		t.Errorf("expected the new name, got %q", node.Name)
	}
	if len(node.Fields) != 1 || node.Fields[0].Name != "warranty" {
		t.Errorf("expected the replacement field set, got %v", node.Fields)
	}
}
