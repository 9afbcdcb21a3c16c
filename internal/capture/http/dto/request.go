// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"encoding/json"

	validation "github.com/jellydator/validation"

	"github.com/allisson/fieldsync/internal/envelope/domain"
)

// RecordActionRequest represents the request body for recording one action.
type RecordActionRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Validate validates the request fields. Payload content rules are applied by
// the use case.
func (r RecordActionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required, validation.By(knownKind)),
		validation.Field(&r.Payload, validation.Required),
	)
}

func knownKind(value interface{}) error {
	kind, ok := value.(string)
	if !ok {
		return validation.NewError("validation_kind_type", "must be a string")
	}
	if !domain.ActionKind(kind).Valid() {
		return validation.NewError("validation_kind", "must be a known action kind")
	}
	return nil
}

// RecordActionResponse acknowledges a recorded action.
type RecordActionResponse struct {
	ID string `json:"id"`
}

// RecordPhotoResponse acknowledges a recorded photo.
type RecordPhotoResponse struct {
	ID string `json:"id"`
}
