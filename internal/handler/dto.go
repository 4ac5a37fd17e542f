package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"go-classifieds-app/internal/apperr"
	"go-classifieds-app/internal/data"
)

// fieldDTO is the transport shape of an attribute field definition.
type fieldDTO struct {
	Name    string   `json:"name" validate:"required"`
	Type    string   `json:"type" validate:"required,oneof=text number select boolean"`
	Options []string `json:"options"`
}

func (f fieldDTO) toModel() data.AttributeField {
	return data.AttributeField{
		Name:    f.Name,
		Type:    data.FieldType(f.Type),
		Options: f.Options,
	}
}

func fieldsToModel(dtos []fieldDTO) []data.AttributeField {
	if dtos == nil {
		return nil
	}
	fields := make([]data.AttributeField, len(dtos))
	for i, d := range dtos {
		fields[i] = d.toModel()
	}
	return fields
}

type createCategoryRequest struct {
	Name     string     `json:"name" validate:"required"`
	ParentID *string    `json:"parent_id"`
	Fields   []fieldDTO `json:"fields" validate:"dive"`
}

type updateCategoryRequest struct {
	Name   string     `json:"name"`
	Fields []fieldDTO `json:"fields" validate:"dive"`
}

type createRecordRequest struct {
	OwnerUserID    string          `json:"owner_user_id"`
	Vertical       string          `json:"vertical" validate:"required"`
	SubVertical    string          `json:"sub_vertical"`
	CategoryNodeID string          `json:"category_node_id"`
	Payload        json.RawMessage `json:"payload"`
	PublishNow     bool            `json:"publish_now"`
}

type bulkRequest struct {
	OwnerUserID string   `json:"owner_user_id"`
	IDs         []string `json:"ids" validate:"required,min=1"`
	Action      string   `json:"action" validate:"required"`
}

type transitionForRequest struct {
	OwnerUserID string `json:"owner_user_id" validate:"required"`
}

type verificationRequest struct {
	Status string `json:"status" validate:"required"`
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
func decodeAndValidate(r *http.Request, validate *validator.Validate, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.ValidationFailed, err, "malformed request body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Wrap(apperr.ValidationFailed, err, "invalid request body")
	}
	return nil
}

// writeJSON renders a success response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
