package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{name: "domain error passes through", err: NewConflict("taken", nil), code: CodeConflict, status: http.StatusConflict},
		{name: "wrapped domain error", err: fmt.Errorf("claim: %w", NewForbidden("Technicians only.")), code: CodeForbidden, status: http.StatusForbidden},
		{name: "no rows", err: fmt.Errorf("get: %w", pgx.ErrNoRows), code: CodeNotFound, status: http.StatusNotFound},
		{name: "anything else", err: errors.New("connection reset"), code: CodeInternal, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ToDomainError(tt.err)
			require.NotNil(t, de)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.status, de.HTTPStatus)
		})
	}
	assert.Nil(t, ToDomainError(nil))
}

func TestMapError_NilStaysNil(t *testing.T) {
	assert.NoError(t, MapError(nil))
	assert.True(t, HasCode(MapError(pgx.ErrNoRows), CodeNotFound))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(NewTerminalState("Ticket is already closed.", nil)))
	assert.True(t, IsRejection(NewValidationError("bad", nil)))
	assert.False(t, IsRejection(NewInternalError(errors.New("boom"))))
	assert.False(t, IsRejection(errors.New("plain")))
}

func TestInternalErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := NewInternalError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error: disk full", err.Error())
}
