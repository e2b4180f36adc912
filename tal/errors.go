package tal

import (
	"errors"
	"fmt"

	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal/layout"
)

var (
	// ErrInterlockViolation is returned when a switch can't be moved because of a train on its current path.
	// Callers wait for the next relevant state change or re-plan.
	ErrInterlockViolation = errors.New("interlock violation")
	// ErrReservationDenied is returned by TryReserve; see DeniedError.
	ErrReservationDenied = errors.New("reservation denied")
	// ErrNoPath is returned by the planner when the goal can't be reached.
	ErrNoPath = errors.New("no path")
	// ErrOccupancyContradiction means sensors disagree with where a train is believed to be.
	ErrOccupancyContradiction = errors.New("occupancy contradiction")
	// ErrStallTimeout means a train did not progress in time.
	ErrStallTimeout = errors.New("stall timeout")
	// ErrFault is a fault reported by the adapter.
	ErrFault = errors.New("fault")
)

type DenyReason int

const (
	AlreadyHeld DenyReason = iota + 1
	PhysicallyOccupied
)

func (r DenyReason) String() string {
	switch r {
	case AlreadyHeld:
		return "already held"
	case PhysicallyOccupied:
		return "physically occupied"
	default:
		return fmt.Sprintf("reason%d", int(r))
	}
}

type DeniedError struct {
	Block  layout.BlockI
	Train  shingo.TrainID
	Reason DenyReason
	// Holder is set if Reason is AlreadyHeld.
	Holder shingo.TrainID
}

func (e *DeniedError) Error() string {
	if e.Reason == AlreadyHeld {
		return fmt.Sprintf("block %d for %s: %s by %s", e.Block, e.Train, e.Reason, e.Holder)
	}
	return fmt.Sprintf("block %d for %s: %s", e.Block, e.Train, e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrReservationDenied }

type InterlockError struct {
	Switch layout.SwitchI
	From   layout.Position
	To     layout.Position
	// Block is the block on the current path that prevents the change.
	Block    layout.BlockI
	Holder   shingo.TrainID
	Occupied bool
}

func (e *InterlockError) Error() string {
	why := "held by " + e.Holder.String()
	if e.Occupied {
		why = "occupied"
	}
	return fmt.Sprintf("switch %d %s→%s: block %d %s", e.Switch, e.From, e.To, e.Block, why)
}

func (e *InterlockError) Unwrap() error { return ErrInterlockViolation }

type ContradictionError struct {
	Train shingo.TrainID
	// Block is the block the sensor reported.
	Block layout.BlockI
	// Believed is where the train was believed to be.
	Believed layout.BlockI
}

func (e *ContradictionError) Error() string {
	return fmt.Sprintf("%s believed at block %d but block %d reported occupied", e.Train, e.Believed, e.Block)
}

func (e *ContradictionError) Unwrap() error { return ErrOccupancyContradiction }
