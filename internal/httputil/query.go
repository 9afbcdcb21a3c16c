package httputil

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/fieldsync/internal/errors"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ParseLimit extracts and validates the limit query parameter, applying the
// default when absent and clamping to the maximum.
func ParseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}
