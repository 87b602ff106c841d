package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWithHint(t *testing.T) {
	err := WithHint(New("error"), "lower min_cluster_size")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "lower min_cluster_size", hints[0])
}

func TestNewInvalidInputError(t *testing.T) {
	err := NewInvalidInputError("weights has %d entries, texts has %d", 2, 3)

	assert.True(t, IsInvalidInput(err))
	assert.False(t, IsComputationFailure(err))
	assert.Contains(t, err.Error(), "weights has 2 entries, texts has 3")
}

func TestNewComputationError(t *testing.T) {
	err := NewComputationError("core distance", "point %d has no neighbours", 4)

	assert.True(t, IsComputationFailure(err))
	assert.Contains(t, err.Error(), "core distance")
	assert.Contains(t, err.Error(), "point 4")
}

func TestWrapCollaborator(t *testing.T) {
	cause := New("connection refused")
	err := WrapCollaborator(cause, "encode batch 0")

	assert.True(t, IsCollaboratorFailure(err))
	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "encode batch 0")

	assert.Nil(t, WrapCollaborator(nil, "unused"))
}

func TestSentinelsSurviveFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewInvalidInputError("bad"))
	assert.True(t, IsInvalidInput(err))
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid input", NewInvalidInputError("x"), "invalid_input"},
		{"collaborator", WrapCollaborator(New("x"), "y"), "collaborator_failure"},
		{"computation", NewComputationError("mst", "x"), "computation_failure"},
		{"not found", Wrap(ErrNotFound, "model"), "not_found"},
		{"other", New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}
