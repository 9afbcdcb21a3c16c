// Package dto provides data transfer objects for HTTP response handling.
package dto

import (
	"encoding/json"
	"time"

	"github.com/allisson/fieldsync/internal/envelope/domain"
	statusUseCase "github.com/allisson/fieldsync/internal/status/usecase"
)

// StatusResponse represents the agent snapshot in API responses.
type StatusResponse struct {
	DeviceID     string     `json:"device_id"`
	Connectivity string     `json:"connectivity"`
	PendingCount int64      `json:"pending_count"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
}

// MapStatusToResponse converts a domain status snapshot to an API response.
func MapStatusToResponse(status *statusUseCase.Status) StatusResponse {
	return StatusResponse{
		DeviceID:     status.DeviceID,
		Connectivity: string(status.Connectivity),
		PendingCount: status.PendingCount,
		LastSyncAt:   status.LastSyncAt,
	}
}

// FailedEnvelopeResponse represents a terminally failed envelope in API responses.
type FailedEnvelopeResponse struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	DeviceSequence int64           `json:"device_sequence"`
	CapturedAt     time.Time       `json:"captured_at"`
	FailureReason  string          `json:"failure_reason"`
	LastError      string          `json:"last_error,omitempty"`
	Attempts       int             `json:"attempts"`
}

// ListFailedResponse wraps the failed envelope collection.
type ListFailedResponse struct {
	Envelopes []FailedEnvelopeResponse `json:"envelopes"`
	Count     int                      `json:"count"`
}

// MapEnvelopesToListFailedResponse converts parked envelopes to an API response.
func MapEnvelopesToListFailedResponse(envelopes []*domain.ActionEnvelope) ListFailedResponse {
	response := ListFailedResponse{
		Envelopes: make([]FailedEnvelopeResponse, 0, len(envelopes)),
		Count:     len(envelopes),
	}
	for _, env := range envelopes {
		item := FailedEnvelopeResponse{
			ID:             env.ID,
			Kind:           string(env.Kind),
			Payload:        json.RawMessage(env.Payload),
			DeviceSequence: env.DeviceSequence,
			CapturedAt:     env.CapturedAt,
			Attempts:       env.Attempts,
		}
		if env.FailureReason != nil {
			item.FailureReason = string(*env.FailureReason)
		}
		if env.LastError != nil {
			item.LastError = *env.LastError
		}
		response.Envelopes = append(response.Envelopes, item)
	}
	return response
}

// SyncTriggeredResponse acknowledges a manual sync request.
type SyncTriggeredResponse struct {
	Synced     bool       `json:"synced"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}
