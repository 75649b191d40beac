package agent

import (
	"errors"
	"fmt"
)

// State is the lifecycle of the agent's single logical connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticated
	Joining
	Joined
	Leaving
)

var stateNames = [...]string{"disconnected", "connecting", "authenticated", "joining", "joined", "leaving"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

var ErrIllegalTransition = errors.New("illegal state transition")

// transitions lists every allowed edge. Joining -> Joining is a superseding
// join; Joined -> Authenticated is a room closed under us.
var transitions = map[State][]State{
	Disconnected:  {Connecting},
	Connecting:    {Authenticated, Disconnected},
	Authenticated: {Joining, Disconnected},
	Joining:       {Joining, Joined, Authenticated, Disconnected},
	Joined:        {Joining, Leaving, Authenticated, Disconnected},
	Leaving:       {Authenticated, Disconnected},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type stateChange struct{ from, to State }
