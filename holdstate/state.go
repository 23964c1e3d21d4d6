package holdstate

import (
	"errors"
	"fmt"
)

// ErrUnknownState is returned when a persisted value does not map to a State.
var ErrUnknownState = errors.New("unknown hold state")

// State is the persisted state of a hold invoice.
type State int

const (
	// Held is the initial state. Incoming htlcs are held until the state
	// changes.
	Held State = iota
	// Released allows the node to settle the held htlcs.
	Released
	// Rejected fails the held htlcs.
	Rejected
)

var stateNames = map[State]string{
	Held:     "held",
	Released: "released",
	Rejected: "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsFinal returns true if no further transition is expected.
func (s State) IsFinal() bool {
	return s == Released || s == Rejected
}

// ParseState returns the State for its string representation.
func ParseState(s string) (State, error) {
	for state, name := range stateNames {
		if name == s {
			return state, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownState, s)
}

func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, int(s))
	}
	return []byte(name), nil
}

func (s *State) UnmarshalText(text []byte) error {
	state, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}
