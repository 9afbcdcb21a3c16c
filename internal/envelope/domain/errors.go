package domain

import (
	"github.com/allisson/fieldsync/internal/errors"
)

// Envelope-specific error definitions.
var (
	// ErrPayloadTooLarge indicates the action payload exceeds the configured maximum size.
	ErrPayloadTooLarge = errors.Wrap(errors.ErrInvalidInput, "payload too large")

	// ErrUnknownKind indicates the action kind is not one of the supported kinds.
	ErrUnknownKind = errors.Wrap(errors.ErrInvalidInput, "unknown action kind")

	// ErrEnvelopeNotFound indicates an envelope with the specified ID was not found.
	ErrEnvelopeNotFound = errors.Wrap(errors.ErrNotFound, "envelope not found")

	// ErrStorageUnavailable indicates the durable append could not complete;
	// the caller still holds the envelope and must retry.
	ErrStorageUnavailable = errors.Wrap(errors.ErrUnavailable, "queue storage unavailable")
)
