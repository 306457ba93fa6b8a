package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryStatus(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		status int
		code   Code
	}{
		{BadRequest("x"), http.StatusBadRequest, CodeBadRequest},
		{Unauthorized(""), http.StatusUnauthorized, CodeUnauthorized},
		{InvalidToken(nil), http.StatusUnauthorized, CodeInvalidToken},
		{Forbidden(""), http.StatusForbidden, CodeForbidden},
		{NotFound("album", "a1"), http.StatusNotFound, CodeNotFound},
		{Conflict("dup"), http.StatusConflict, CodeConflict},
		{Unprocessable("bad"), http.StatusUnprocessableEntity, CodeUnprocessable},
		{PayloadTooLarge(1024), http.StatusRequestEntityTooLarge, CodeTooLarge},
		{RateLimitExceeded(5, "1s"), http.StatusTooManyRequests, CodeRateLimited},
		{Unavailable("off"), http.StatusServiceUnavailable, CodeUnavailable},
		{Internal("boom", nil), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.HTTPStatus, tc.code)
		assert.Equal(t, tc.code, tc.err.Code)
	}
}

func TestGetServiceErrorUnwraps(t *testing.T) {
	base := NotFound("user", "u1")
	wrapped := fmt.Errorf("load profile: %w", base)

	se := GetServiceError(wrapped)
	require.NotNil(t, se)
	assert.Equal(t, CodeNotFound, se.Code)
	assert.Equal(t, "u1", se.Details["id"])
	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.Nil(t, GetServiceError(stderrors.New("plain")))
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := BadRequest("invalid")
	withField := base.WithDetails("field", "title")

	assert.Nil(t, base.Details)
	assert.Equal(t, "title", withField.Details["field"])
}

func TestInternalKeepsCause(t *testing.T) {
	cause := stderrors.New("driver down")
	err := Internal("query failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "driver down")
}
