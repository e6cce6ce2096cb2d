package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ms-rental/internal/apperr"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("create order: %w", apperr.Policy("vehicle already booked for requested window"))

	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))
	assert.True(t, apperr.Is(err, apperr.KindPolicy))
	assert.Equal(t, "vehicle already booked for requested window", apperr.PublicMessage(err))
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, "internal error", apperr.PublicMessage(err))
	assert.False(t, apperr.Is(nil, apperr.KindInternal))
}

func TestUpstreamIsRetryable(t *testing.T) {
	cause := errors.New("timeout")
	err := apperr.Upstream(cause, "payment provider unavailable")

	assert.True(t, err.Retryable())
	assert.ErrorIs(t, err, cause)
	assert.False(t, apperr.Integrity("odometer went backwards").Retryable())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindValidation:   http.StatusBadRequest,
		apperr.KindNotFound:     http.StatusNotFound,
		apperr.KindPolicy:       http.StatusConflict,
		apperr.KindForbidden:    http.StatusForbidden,
		apperr.KindAuthenticity: http.StatusUnauthorized,
		apperr.KindUpstream:     http.StatusBadGateway,
		apperr.KindIntegrity:    http.StatusUnprocessableEntity,
		apperr.KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, apperr.HTTPStatus(kind), kind)
	}
}
