package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"go-classifieds-app/internal/apperr"
	"go-classifieds-app/internal/data"
	"go-classifieds-app/internal/logger"
	"go-classifieds-app/internal/service"
)

// CategoryHandler exposes the hierarchy engine over HTTP.
type CategoryHandler struct {
	hierarchy *service.HierarchyService
	validate  *validator.Validate
	log       logger.Logger
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(hierarchy *service.HierarchyService, validate *validator.Validate, log logger.Logger) *CategoryHandler {
	return &CategoryHandler{hierarchy: hierarchy, validate: validate, log: log}
}

func verticalParam(r *http.Request) (data.Vertical, error) {
	vertical := data.Vertical(chi.URLParam(r, "vertical"))
	if !vertical.Valid() {
		return "", apperr.New(apperr.NotFound, "unknown vertical %q", vertical)
	}
	return vertical, nil
}

// createHandler creates a category node, optionally under a parent.
func (h *CategoryHandler) createHandler(w http.ResponseWriter, r *http.Request) error {
	vertical, err := verticalParam(r)
	if err != nil {
		return err
	}
	var req createCategoryRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		return err
	}

	node, err := h.hierarchy.CreateNode(r.Context(), vertical, req.Name, req.ParentID, fieldsToModel(req.Fields))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, node)
}

// updateHandler edits a node's name and field definitions.
func (h *CategoryHandler) updateHandler(w http.ResponseWriter, r *http.Request) error {
	vertical, err := verticalParam(r)
	if err != nil {
		return err
	}
	var req updateCategoryRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		return err
	}

	node, err := h.hierarchy.UpdateNode(r.Context(), vertical, chi.URLParam(r, "id"), req.Name, fieldsToModel(req.Fields))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, node)
}

// childrenHandler lists the direct children of a node.
func (h *CategoryHandler) childrenHandler(w http.ResponseWriter, r *http.Request) error {
	vertical, err := verticalParam(r)
	if err != nil {
		return err
	}
	children, err := h.hierarchy.GetChildren(r.Context(), vertical, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, children)
}

// treeHandler materializes the subtree rooted at a node.
func (h *CategoryHandler) treeHandler(w http.ResponseWriter, r *http.Request) error {
	vertical, err := verticalParam(r)
	if err != nil {
		return err
	}
	tree, err := h.hierarchy.GetTree(r.Context(), vertical, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, tree)
}

// allTreesHandler materializes every tree in a vertical.
func (h *CategoryHandler) allTreesHandler(w http.ResponseWriter, r *http.Request) error {
	vertical, err := verticalParam(r)
	if err != nil {
		return err
	}
	trees, err := h.hierarchy.GetAllTrees(r.Context(), vertical)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, trees)
}

// fieldsHandler returns the resolved attribute set for a node.
func (h *CategoryHandler) fieldsHandler(w http.ResponseWriter, r *http.Request) error {
	vertical, err := verticalParam(r)
	if err != nil {
		return err
	}
	fields, err := h.hierarchy.GetResolvedFields(r.Context(), vertical, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, fields)
}

// deleteHandler removes a node and its whole subtree.
func (h *CategoryHandler) deleteHandler(w http.ResponseWriter, r *http.Request) error {
	vertical, err := verticalParam(r)
	if err != nil {
		return err
	}
	if err := h.hierarchy.DeleteTree(r.Context(), vertical, chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
