// Package validation provides custom validation rules for captured payloads.
package validation

import (
	"encoding/json"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/fieldsync/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// JSONObject validates that a byte slice holds a JSON object. Payloads are
// stored and transmitted as-is, so malformed JSON must be caught at capture
// time rather than on the sync path.
var JSONObject = validation.By(func(value interface{}) error {
	data, ok := value.([]byte)
	if !ok {
		return validation.NewError("validation_json_type", "must be a byte slice")
	}
	if len(data) == 0 {
		return nil // Let Required handle empty payloads
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		return validation.NewError("validation_json", "must be a valid JSON object")
	}
	return nil
})

// coordinates is the shape location_update payloads must carry.
type coordinates struct {
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lon"`
}

// Coordinates validates that a location payload carries a lat/lon pair within
// WGS84 bounds.
var Coordinates = validation.By(func(value interface{}) error {
	data, ok := value.([]byte)
	if !ok {
		return validation.NewError("validation_coordinates_type", "must be a byte slice")
	}

	var coords coordinates
	if err := json.Unmarshal(data, &coords); err != nil {
		return validation.NewError("validation_coordinates", "must be a valid JSON object")
	}
	if coords.Latitude == nil || coords.Longitude == nil {
		return validation.NewError("validation_coordinates_required", "must include lat and lon")
	}
	if *coords.Latitude < -90 || *coords.Latitude > 90 {
		return validation.NewError("validation_coordinates_lat", "lat must be between -90 and 90")
	}
	if *coords.Longitude < -180 || *coords.Longitude > 180 {
		return validation.NewError("validation_coordinates_lon", "lon must be between -180 and 180")
	}
	return nil
})
