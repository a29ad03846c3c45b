package reconcile

import "strings"

// MutationKind identifies one class of in-flight write against a joke
type MutationKind uint8

const (
	MutationRating MutationKind = 1 << iota
	MutationDeleteFlag
)

var mutationKinds = []MutationKind{MutationRating, MutationDeleteFlag}

func (k MutationKind) String() string {
	switch k {
	case MutationRating:
		return "rating"
	case MutationDeleteFlag:
		return "delete_flag"
	default:
		return "unknown"
	}
}

// MutationState is either Idle or Pending with a non-empty set of kinds.
// The zero value is Idle.
type MutationState struct {
	pending MutationKind
}

// Idle returns the state with nothing in flight
func Idle() MutationState {
	return MutationState{}
}

// Pending returns the state with the given kinds in flight
func Pending(kinds ...MutationKind) MutationState {
	var s MutationState
	for _, k := range kinds {
		s.pending |= k
	}
	return s
}

// IsIdle reports whether no mutation is in flight
func (s MutationState) IsIdle() bool {
	return s.pending == 0
}

// Has reports whether a mutation of kind k is in flight
func (s MutationState) Has(k MutationKind) bool {
	return s.pending&k != 0
}

// With returns s with k marked in flight
func (s MutationState) With(k MutationKind) MutationState {
	return MutationState{pending: s.pending | k}
}

// Without returns s with k released
func (s MutationState) Without(k MutationKind) MutationState {
	return MutationState{pending: s.pending &^ k}
}

func (s MutationState) String() string {
	if s.IsIdle() {
		return "idle"
	}
	var kinds []string
	for _, k := range mutationKinds {
		if s.Has(k) {
			kinds = append(kinds, k.String())
		}
	}
	return "pending(" + strings.Join(kinds, ",") + ")"
}
