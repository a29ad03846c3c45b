package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutationState(t *testing.T) {
	s := Idle()
	assert.True(t, s.IsIdle())
	assert.Equal(t, "idle", s.String())

	s = s.With(MutationRating)
	assert.False(t, s.IsIdle())
	assert.True(t, s.Has(MutationRating))
	assert.False(t, s.Has(MutationDeleteFlag))
	assert.Equal(t, "pending(rating)", s.String())

	s = s.With(MutationDeleteFlag)
	assert.Equal(t, "pending(rating,delete_flag)", s.String())
	assert.Equal(t, Pending(MutationRating, MutationDeleteFlag), s)

	s = s.Without(MutationRating).Without(MutationDeleteFlag)
	assert.True(t, s.IsIdle())
}

func TestMutationState_WithIsIdempotent(t *testing.T) {
	s := Pending(MutationRating).With(MutationRating)
	assert.Equal(t, Pending(MutationRating), s)
	assert.True(t, Pending().IsIdle())
}
