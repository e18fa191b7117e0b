package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("compute", "cmp-123", nil)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "cmp-123")
	assert.Equal(t, "compute", err.Details["resourceType"])
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("invalid preset spec", map[string]interface{}{
		"image": "must not be empty",
	}, nil)

	assert.True(t, IsValidation(err))
	assert.Equal(t, "must not be empty", err.Details["image"])
}

func TestInUseError(t *testing.T) {
	err := NewInUseError("preset", "web-server", 3)

	assert.True(t, IsInUse(err))
	assert.Contains(t, err.Error(), "3 live instances")
	assert.Equal(t, int32(3), err.Details["replicas"])
}

func TestTimeoutError(t *testing.T) {
	cause := errors.New("context deadline exceeded")
	err := NewTimeoutError("CreateCompute", "no claimable pod", cause)

	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "CreateCompute", err.Details["operation"])
}

func TestInternalError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewInternalError("failed to list pods default/app=compute", cause)

	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestComputeErrorWrapping(t *testing.T) {
	cause := NewNotFoundError("compute", "cmp-123", nil)
	err := NewComputeError("cmp-123", "delete", cause)

	// Predicates see through the contextual wrapper.
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "cmp-123", err.ComputeID)
	assert.Equal(t, "delete", err.Op)
	assert.Contains(t, err.Error(), "compute cmp-123")

	var notFound *Error
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, ErrorTypeNotFound, notFound.Type)
}

func TestPresetErrorWrapping(t *testing.T) {
	cause := NewInUseError("preset", "web-server", 1)
	err := NewPresetError("web-server", "delete", cause)

	assert.True(t, IsInUse(err))
	assert.Equal(t, "web-server", err.PresetID)
}

func TestDeepWrapping(t *testing.T) {
	// fmt.Errorf wrapping on top of the taxonomy still resolves.
	inner := NewTimeoutError("WaitForReady", "pod not ready", nil)
	outer := fmt.Errorf("operation failed: %w", NewComputeError("cmp-1", "waitForReady", inner))

	assert.True(t, IsTimeout(outer))
	assert.False(t, IsNotFound(outer))
}

func TestErrorStringWithoutCause(t *testing.T) {
	err := NewValidationError("bad spec", nil, nil)
	assert.Equal(t, "validation_error: bad spec", err.Error())
}
