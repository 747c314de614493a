// Package consensus implements the dual-track validation state machine.
//
// Two independent attestor tracks review each credential. A single rejection
// from either track vetoes it; approval from both tracks validates it. Pending
// and the single-track approved states are open, FullyValidated and Rejected
// are terminal.
package consensus

import (
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

type State string

const (
	StatePending        State = "Pending"
	StateTrackAApproved State = "TrackAApproved"
	StateTrackBApproved State = "TrackBApproved"
	StateFullyValidated State = "FullyValidated"
	StateRejected       State = "Rejected"
)

func (s State) IsValid() bool {
	switch s {
	case StatePending, StateTrackAApproved, StateTrackBApproved, StateFullyValidated, StateRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further vote can move the state.
func (s State) IsTerminal() bool {
	return s == StateFullyValidated || s == StateRejected
}

func (s State) String() string { return string(s) }

func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown validation state: "+raw)
	}
	return s, nil
}

type Track string

const (
	TrackA Track = "A"
	TrackB Track = "B"
)

func (t Track) IsValid() bool { return t == TrackA || t == TrackB }

func (t Track) String() string { return string(t) }

// Other returns the opposite track.
func (t Track) Other() Track {
	if t == TrackA {
		return TrackB
	}
	return TrackA
}

// ApprovedState is the single-track state reached when only t has approved.
func (t Track) ApprovedState() State {
	if t == TrackA {
		return StateTrackAApproved
	}
	return StateTrackBApproved
}

// Role is the caller role entitled to vote on t.
func (t Track) Role() id.Role {
	if t == TrackA {
		return id.RoleTrackA
	}
	return id.RoleTrackB
}

func ParseTrack(raw string) (Track, error) {
	t := Track(raw)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "track must be A or B")
	}
	return t, nil
}

// Transition returns the state reached by one vote on track.
//
//	Pending        -> TrackAApproved | TrackBApproved | Rejected
//	TrackAApproved -> FullyValidated (B approves) | Rejected | TrackAApproved (another A approves)
//	TrackBApproved -> FullyValidated (A approves) | Rejected | TrackBApproved (another B approves)
//
// Votes on terminal states fail with CodeInvalidState. Deduplicating voters is
// the caller's job; Transition only sees the track and the verdict.
func Transition(current State, track Track, approved bool) (State, error) {
	if !track.IsValid() {
		return current, dErrors.New(dErrors.CodeInvalidInput, "track must be A or B")
	}
	if !current.IsValid() {
		return current, dErrors.New(dErrors.CodeInvariantViolation, "unknown validation state: "+string(current))
	}
	if current.IsTerminal() {
		return current, dErrors.New(dErrors.CodeInvalidState, "validation is already "+string(current))
	}
	if !approved {
		return StateRejected, nil
	}
	switch current {
	case StatePending, track.ApprovedState():
		return track.ApprovedState(), nil
	case track.Other().ApprovedState():
		return StateFullyValidated, nil
	}
	return current, dErrors.New(dErrors.CodeInvariantViolation, "unreachable validation state")
}
