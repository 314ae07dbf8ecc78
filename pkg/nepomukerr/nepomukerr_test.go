package nepomukerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesKindAndMessage(t *testing.T) {
	err := New(CardinalityExceeded, "too many values for %s", "tag")
	assert.Equal(t, CardinalityExceeded, err.Kind)
	assert.Contains(t, err.Error(), "too many values for tag")
	assert.Contains(t, err.Error(), "CardinalityExceeded")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(StoreError, cause, "commit failed")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestStoreWrapsAsStoreError(t *testing.T) {
	cause := errors.New("boom")
	err := Store(cause)
	assert.Equal(t, StoreError, err.Kind)
	assert.ErrorIs(t, err, cause)
}

func TestErrorsAsUnwrapsToErrorType(t *testing.T) {
	var err error = New(UnknownProperty, "nope")
	var target *Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, UnknownProperty, target.Kind)
}

func TestKindOfDefaultsToStoreErrorForForeignErrors(t *testing.T) {
	assert.Equal(t, StoreError, KindOf(errors.New("opaque")))
	assert.Equal(t, InvalidArgument, KindOf(New(InvalidArgument, "bad")))
}

func TestKindStringer(t *testing.T) {
	cases := map[Kind]string{
		InvalidArgument:         "InvalidArgument",
		UnknownProperty:         "UnknownProperty",
		UnknownClass:            "UnknownClass",
		CardinalityExceeded:     "CardinalityExceeded",
		UniquenessViolation:     "UniquenessViolation",
		PermissionDenied:        "PermissionDenied",
		AmbiguousIdentification: "AmbiguousIdentification",
		StoreError:              "StoreError",
		Cancelled:               "Cancelled",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
	assert.Equal(t, "Unknown", Kind(999).String())
}
