package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carelink/carelink-server/internal/apperr"
)

func TestFromDomainError(t *testing.T) {
	tt := []struct {
		name           string
		err            error
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:           "not found",
			err:            apperr.NotFound("appointment not found"),
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "appointment not found",
		},
		{
			name:           "forbidden",
			err:            apperr.Forbidden("access denied"),
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "access denied",
		},
		{
			name:           "conflict",
			err:            apperr.Conflict("this time slot is already booked"),
			expectedStatus: http.StatusConflict,
			expectedMsg:    "this time slot is already booked",
		},
		{
			name:           "invalid state",
			err:            apperr.InvalidState("only pending appointments can be confirmed or rejected"),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "only pending appointments can be confirmed or rejected",
		},
		{
			name:           "validation failed",
			err:            apperr.ValidationFailed(map[string]string{"date": "date is required"}),
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "validation failed",
		},
		{
			name:           "unwrapped errors become opaque 500s",
			err:            errors.New("pq: connection refused"),
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
		{
			name:           "internal kind is also opaque",
			err:            apperr.Internal("load subject", errors.New("timeout")),
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			errResp := fromDomainError(tc.err)
			assert.Equal(t, tc.expectedStatus, errResp.StatusCode)
			assert.Equal(t, tc.expectedMsg, errResp.Message)
		})
	}
}

func TestFromDomainErrorKeepsFieldDetail(t *testing.T) {
	errResp := fromDomainError(apperr.ValidationFailed(map[string]string{
		"provider_id": "provider is required",
	}))

	assert.Equal(t, "provider is required", errResp.Fields["provider_id"])
}

func TestFromDomainErrorUnwrapsDeepErrors(t *testing.T) {
	wrapped := errors.Join(errors.New("handler"), apperr.Conflict("this time slot is already booked"))

	errResp := fromDomainError(wrapped)
	assert.Equal(t, http.StatusConflict, errResp.StatusCode)
}
