// Package remote implements the HTTP client for the sync endpoint. The
// endpoint is a collaborator: it must treat each envelope id as an
// idempotency key and answer per-envelope with accepted, rejected or
// retry-later.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/allisson/fieldsync/internal/envelope/domain"
	"github.com/allisson/fieldsync/internal/errors"
)

// Config holds remote client configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// batchRequest is the wire format of one batch submission.
type batchRequest struct {
	DeviceID  string          `json:"device_id"`
	Envelopes []batchEnvelope `json:"envelopes"`
}

// batchEnvelope carries one envelope; the id doubles as the idempotency key.
type batchEnvelope struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Payload        []byte    `json:"payload"`
	CapturedAt     time.Time `json:"captured_at"`
	DeviceSequence int64     `json:"device_sequence"`
}

// batchResponse is the wire format of the per-envelope verdicts.
type batchResponse struct {
	Results []batchResult `json:"results"`
}

type batchResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// HTTPClient submits envelope batches over HTTP. A client-side rate limiter
// caps the request rate so retry pressure cannot hammer a recovering link.
type HTTPClient struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(config Config) *HTTPClient {
	return &HTTPClient{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSec), config.Burst),
	}
}

// SubmitBatch posts the envelopes in order and returns the remote's
// per-envelope verdicts. Transport failures and 5xx responses return an
// error with no results; the caller treats unacknowledged envelopes as
// retryable. A 4xx on the whole batch is reported as rejected for every
// envelope, since resubmitting the same batch cannot succeed.
func (c *HTTPClient) SubmitBatch(
	ctx context.Context,
	envelopes []*domain.ActionEnvelope,
) ([]domain.SubmissionResult, error) {
	if len(envelopes) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildBatchRequest(envelopes))
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/actions/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrUnavailable, "remote returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return rejectAll(envelopes, fmt.Sprintf("remote returned %d", resp.StatusCode)), nil
	}

	var decoded batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, "failed to decode response")
	}

	results := make([]domain.SubmissionResult, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		results = append(results, domain.SubmissionResult{
			ID:     result.ID,
			Status: domain.SubmissionStatus(result.Status),
			Reason: result.Reason,
		})
	}
	return results, nil
}

func buildBatchRequest(envelopes []*domain.ActionEnvelope) batchRequest {
	req := batchRequest{
		DeviceID:  envelopes[0].DeviceID,
		Envelopes: make([]batchEnvelope, 0, len(envelopes)),
	}
	for _, env := range envelopes {
		req.Envelopes = append(req.Envelopes, batchEnvelope{
			ID:             env.ID,
			Kind:           string(env.Kind),
			Payload:        env.Payload,
			CapturedAt:     env.CapturedAt,
			DeviceSequence: env.DeviceSequence,
		})
	}
	return req
}

func rejectAll(envelopes []*domain.ActionEnvelope, reason string) []domain.SubmissionResult {
	results := make([]domain.SubmissionResult, 0, len(envelopes))
	for _, env := range envelopes {
		results = append(results, domain.SubmissionResult{
			ID:     env.ID,
			Status: domain.SubmissionRejected,
			Reason: reason,
		})
	}
	return results
}
