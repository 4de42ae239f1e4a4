package errs

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, None, KindOf(nil))
	assert.Equal(t, Unknown, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, NotFound, KindOf(New(NotFound, "port %q", "chat")))

	wrapped := fmt.Errorf("outer: %w", New(OutOfRange, "too big"))
	assert.True(t, Is(wrapped, OutOfRange))
}

func TestWrapKeepsCause(t *testing.T) {
	native := errors.New("errno -5")
	err := Wrap(native, Platform, "send to %s", "app.b")

	require.Error(t, err)
	assert.Equal(t, Platform, err.Kind)
	assert.Equal(t, native, errors.Cause(err.Cause()))
	assert.Contains(t, err.Error(), "PlatformError: send to app.b")
	assert.Contains(t, err.Error(), "errno -5")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "InvalidValuesError", InvalidValues.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
