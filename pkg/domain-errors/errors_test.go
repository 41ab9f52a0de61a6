package domainerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	dErrors "egireserve/pkg/domain-errors"
)

func TestNewCarriesCode(t *testing.T) {
	err := dErrors.New(dErrors.CodeNotFound, "reservation not found")
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	require.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
	require.Contains(t, err.Error(), "reservation not found")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := dErrors.Wrap(cause, dErrors.CodeInternal, "reservation store failure")

	require.ErrorIs(t, err, cause)
	require.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	require.Contains(t, err.Error(), "connection refused")
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, dErrors.Wrap(nil, dErrors.CodeInternal, "ignored"))
}

func TestCodeOfOutermostWins(t *testing.T) {
	inner := dErrors.New(dErrors.CodeNotFound, "row missing")
	outer := dErrors.Wrap(inner, dErrors.CodeInternal, "lookup failed")
	require.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(outer))
}

func TestCodeOfPlainError(t *testing.T) {
	require.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(errors.New("plain")))
	require.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(fmt.Errorf("wrapped: %w", errors.New("plain"))))
}

func TestRetryable(t *testing.T) {
	require.True(t, dErrors.Retryable(dErrors.New(dErrors.CodeContention, "lock timeout")))
	require.False(t, dErrors.Retryable(dErrors.New(dErrors.CodeNotFound, "gone")))
	require.False(t, dErrors.Retryable(errors.New("plain")))
}
