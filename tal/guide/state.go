package guide

import "fmt"

// State is where a train's coordinator is.
type State int

const (
	// StateIdle is stopped with no route.
	StateIdle State = iota
	// StatePlanning is between a drive request and the first reservation.
	StatePlanning
	// StateAdvancing is moving with movement authority.
	StateAdvancing
	// StateBraking is stopping because the next block could not be reserved.
	StateBraking
	// StateStoppedAtSignal is stopped waiting for a reservation.
	StateStoppedAtSignal
	// StateError needs an operator to reset the train.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateAdvancing:
		return "advancing"
	case StateBraking:
		return "braking"
	case StateStoppedAtSignal:
		return "stopped-at-signal"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state%d", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type outcome int

const (
	outcomeDrive outcome = iota
	outcomeGranted
	outcomeDenied
	outcomeExhausted
	outcomeArrived
	outcomeNoPath
	outcomePark
	outcomeContradiction
	outcomeStall
	outcomeFault
	outcomeReset
)

func (o outcome) String() string {
	return [...]string{
		"drive",
		"granted",
		"denied",
		"exhausted",
		"arrived",
		"no-path",
		"park",
		"contradiction",
		"stall",
		"fault",
		"reset",
	}[o]
}

func (o outcome) fatal() bool {
	return o == outcomeContradiction || o == outcomeStall || o == outcomeFault
}

// next is the whole transition table. ok is false for pairs that must not happen.
func next(s State, o outcome) (s2 State, ok bool) {
	if s == StateError {
		if o == outcomeReset {
			return StateIdle, true
		}
		return s, false
	}
	if o.fatal() {
		return StateError, true
	}
	if o == outcomePark {
		return StateIdle, true
	}
	switch s {
	case StateIdle:
		if o == outcomeDrive {
			return StatePlanning, true
		}
	case StatePlanning:
		switch o {
		case outcomeGranted:
			return StateAdvancing, true
		case outcomeDenied:
			return StateStoppedAtSignal, true
		case outcomeNoPath, outcomeArrived:
			return StateIdle, true
		}
	case StateAdvancing:
		switch o {
		case outcomeGranted:
			return StateAdvancing, true
		case outcomeDenied:
			return StateBraking, true
		case outcomeArrived:
			return StateIdle, true
		}
	case StateBraking:
		switch o {
		case outcomeGranted:
			return StateAdvancing, true
		case outcomeDenied:
			return StateBraking, true
		case outcomeExhausted:
			return StateStoppedAtSignal, true
		case outcomeArrived:
			return StateIdle, true
		}
	case StateStoppedAtSignal:
		switch o {
		case outcomeGranted:
			return StateAdvancing, true
		case outcomeDenied:
			return StateStoppedAtSignal, true
		case outcomeArrived:
			return StateIdle, true
		}
	}
	return s, false
}
