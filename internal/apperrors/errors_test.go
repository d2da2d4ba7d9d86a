package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf_TaggedAndWrapped(t *testing.T) {
	base := NewTransportError("socket closed", errors.New("EOF"))
	require.Equal(t, KindTransport, KindOf(base))

	wrapped := fmt.Errorf("sending command: %w", base)
	require.Equal(t, KindTransport, KindOf(wrapped))

	require.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestEnsure_PreservesTag(t *testing.T) {
	base := NewValidationError("volume is not a number")
	wrapped := fmt.Errorf("router: %w", base)

	got := Ensure(wrapped)
	require.Equal(t, KindValidation, got.Kind)
	require.Equal(t, 400, got.StatusCode)

	plain := Ensure(errors.New("boom"))
	require.Equal(t, KindInternal, plain.Kind)
	require.Equal(t, 500, plain.StatusCode)
	require.Equal(t, "boom", plain.Message)
}

func TestNewLookupMiss_Details(t *testing.T) {
	e := NewLookupMiss("zone", "42")
	require.Equal(t, "zone not found: 42", e.Message)
	require.Equal(t, "zone", e.Details["resource"])
	require.Equal(t, "42", e.Details["id"])
	require.True(t, IsLookupMiss(fmt.Errorf("lookup: %w", e)))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	e := NewResourceError("writing favorites file", cause)
	require.ErrorIs(t, e, cause)
	require.Contains(t, e.Error(), "permission denied")
}
