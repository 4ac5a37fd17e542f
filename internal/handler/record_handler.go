package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"go-classifieds-app/internal/apperr"
	"go-classifieds-app/internal/data"
	"go-classifieds-app/internal/logger"
	"go-classifieds-app/internal/middleware"
	"go-classifieds-app/internal/service"
)

// subjectBuilder turns a validated create request into a concrete record.
type subjectBuilder func(req createRecordRequest, ownerUserID string) (service.Subject, error)

// RecordHandler exposes one lifecycle engine (ads or companies) over
// HTTP. The two subject kinds share every route shape, so the handler is
// generic over the builder.
type RecordHandler struct {
	engine   *service.LifecycleService
	build    subjectBuilder
	validate *validator.Validate
	log      logger.Logger
}

// NewAdHandler creates the handler for classified ad records.
func NewAdHandler(engine *service.LifecycleService, validate *validator.Validate, log logger.Logger) *RecordHandler {
	return &RecordHandler{
		engine:   engine,
		validate: validate,
		log:      log,
		build: func(req createRecordRequest, ownerUserID string) (service.Subject, error) {
			vertical := data.Vertical(req.Vertical)
			if !vertical.Valid() || vertical == data.VerticalCompanies {
				return nil, apperr.New(apperr.ValidationFailed, "vertical %q is not an ad vertical", req.Vertical)
			}
			if req.CategoryNodeID == "" {
				return nil, apperr.New(apperr.ValidationFailed, "an ad requires a category")
			}
			return &data.AdRecord{LifecycleEnvelope: data.LifecycleEnvelope{
				OwnerUserID:    ownerUserID,
				Vertical:       vertical,
				SubVertical:    req.SubVertical,
				CategoryNodeID: req.CategoryNodeID,
				Payload:        req.Payload,
			}}, nil
		},
	}
}

// NewCompanyHandler creates the handler for company profile records.
func NewCompanyHandler(engine *service.LifecycleService, validate *validator.Validate, log logger.Logger) *RecordHandler {
	return &RecordHandler{
		engine:   engine,
		validate: validate,
		log:      log,
		build: func(req createRecordRequest, ownerUserID string) (service.Subject, error) {
			if data.Vertical(req.Vertical) != data.VerticalCompanies {
				return nil, apperr.New(apperr.ValidationFailed, "company profiles live in the companies vertical")
			}
			return &data.CompanyRecord{
				LifecycleEnvelope: data.LifecycleEnvelope{
					OwnerUserID:    ownerUserID,
					Vertical:       data.VerticalCompanies,
					SubVertical:    req.SubVertical,
					CategoryNodeID: req.CategoryNodeID,
					Payload:        req.Payload,
				},
				VerificationStatus: data.VerificationPending,
			}, nil
		},
	}
}

// createHandler creates a record owned by the caller, or by an explicit
// owner when a privileged caller supplies one.
func (h *RecordHandler) createHandler(w http.ResponseWriter, r *http.Request) error {
	caller := middleware.GetCaller(r.Context())
	var req createRecordRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		return err
	}

	owner := caller.UserID
	if req.OwnerUserID != "" {
		owner = req.OwnerUserID
	}
	sub, err := h.build(req, owner)
	if err != nil {
		return err
	}
	created, err := h.engine.Create(r.Context(), caller, sub, req.PublishNow)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, created)
}

// getHandler reads one record with derived flags applied.
func (h *RecordHandler) getHandler(w http.ResponseWriter, r *http.Request) error {
	sub, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sub)
}

// mineHandler lists the caller's own records.
func (h *RecordHandler) mineHandler(w http.ResponseWriter, r *http.Request) error {
	caller := middleware.GetCaller(r.Context())
	subs, err := h.engine.ListOwned(r.Context(), caller, caller.UserID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, subs)
}

// transitionHandler applies a single lifecycle action as the caller.
func (h *RecordHandler) transitionHandler(w http.ResponseWriter, r *http.Request) error {
	caller := middleware.GetCaller(r.Context())
	action, err := service.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		return err
	}
	sub, err := h.engine.ApplyTransition(r.Context(), caller, chi.URLParam(r, "id"), action)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sub)
}

// deleteHandler removes a record permanently.
func (h *RecordHandler) deleteHandler(w http.ResponseWriter, r *http.Request) error {
	caller := middleware.GetCaller(r.Context())
	if _, err := h.engine.ApplyTransition(r.Context(), caller, chi.URLParam(r, "id"), service.ActionDelete); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// bulkHandler applies one action to many records under one owner
// context, reporting per-item results.
func (h *RecordHandler) bulkHandler(w http.ResponseWriter, r *http.Request) error {
	caller := middleware.GetCaller(r.Context())
	var req bulkRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		return err
	}
	action, err := service.ParseAction(req.Action)
	if err != nil {
		return err
	}

	owner := caller.UserID
	if req.OwnerUserID != "" {
		owner = req.OwnerUserID
	}
	result, err := h.engine.BulkApply(r.Context(), caller, owner, req.IDs, action)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

// ownerHandler lists another owner's records. The engine requires
// privilege for any owner other than the caller.
func (h *RecordHandler) ownerHandler(w http.ResponseWriter, r *http.Request) error {
	caller := middleware.GetCaller(r.Context())
	subs, err := h.engine.ListOwned(r.Context(), caller, chi.URLParam(r, "ownerID"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, subs)
}

// transitionForHandler is the explicit-owner admin variant.
func (h *RecordHandler) transitionForHandler(w http.ResponseWriter, r *http.Request) error {
	caller := middleware.GetCaller(r.Context())
	action, err := service.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		return err
	}
	var req transitionForRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		return err
	}
	sub, err := h.engine.ApplyTransitionFor(r.Context(), caller, req.OwnerUserID, chi.URLParam(r, "id"), action)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sub)
}

// verificationHandler moderates a company's verification status.
func (h *RecordHandler) verificationHandler(w http.ResponseWriter, r *http.Request) error {
	caller := middleware.GetCaller(r.Context())
	var req verificationRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		return err
	}
	sub, err := h.engine.SetVerificationStatus(r.Context(), caller, chi.URLParam(r, "id"), data.VerificationStatus(req.Status))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sub)
}
