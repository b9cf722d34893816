package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NotFound("run not found")
		assert.Equal(t, "run not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := stderrors.New("row missing")
		err := Wrap(cause, ErrCodeNotFound, "run not found")
		assert.Equal(t, "run not found: row missing", err.Error())
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, ErrCodeInternal, "something failed")
	require.ErrorIs(t, err, cause)
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"not found", NotFound("x"), IsNotFound},
		{"conflict", Conflict("x"), IsConflict},
		{"validation", Validation("x"), IsValidation},
		{"foreign key", ForeignKey("x"), IsForeignKey},
		{"internal", Internal("x"), IsInternal},
		{"rate limited", RateLimited("x"), IsRateLimited},
		{"unavailable", Unavailable("x"), IsUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.pred(tt.err))
			assert.False(t, tt.pred(stderrors.New("plain")))
		})
	}
}

func TestPredicates_WrappedErrors(t *testing.T) {
	inner := NotFoundf("run %s not found", "abc")
	outer := Wrapf(inner, ErrCodeInternal, "resume failed")

	// The outermost code wins for GetCode.
	assert.Equal(t, ErrCodeInternal, GetCode(outer))
	// errors.As still finds the inner AppError through the chain.
	assert.True(t, IsInternal(outer))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Internal("x")))
	assert.True(t, Retryable(RateLimited("x")))
	assert.True(t, Retryable(Unavailable("x")))
	assert.True(t, Retryable(&AppError{Code: ErrCodeTimeout}))
	assert.False(t, Retryable(Validation("x")))
	assert.False(t, Retryable(Conflict("x")))
	assert.False(t, Retryable(stderrors.New("plain")))
}

func TestGetField(t *testing.T) {
	err := ValidationField("priority", "must be between 0 and 100")
	assert.Equal(t, "priority", GetField(err))
	assert.Equal(t, "", GetField(stderrors.New("plain")))
}
