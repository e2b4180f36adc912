package guide

import (
	"fmt"

	"nyiyui.ca/hato/shingo/tal/layout"
)

// event is something a coordinator reacts to. Events are only handled from the coordinator's mailbox.
type event interface {
	fmt.Stringer
}

// evOccupied is a block the train holds becoming occupied.
type evOccupied struct{ Block layout.BlockI }

func (e evOccupied) String() string { return fmt.Sprintf("occupied(%d)", e.Block) }

// evCleared is a block the train holds becoming clear.
type evCleared struct{ Block layout.BlockI }

func (e evCleared) String() string { return fmt.Sprintf("cleared(%d)", e.Block) }

// evUnexplained is a block nobody holds becoming occupied.
type evUnexplained struct{ Block layout.BlockI }

func (e evUnexplained) String() string { return fmt.Sprintf("unexplained(%d)", e.Block) }

// evWake is the reservation or switch state changing somewhere; blocked trains should try again.
type evWake struct{}

func (evWake) String() string { return "wake" }

type evFault struct{ Message string }

func (e evFault) String() string { return fmt.Sprintf("fault(%q)", e.Message) }

type evPower struct{ On bool }

func (e evPower) String() string { return fmt.Sprintf("power(%t)", e.On) }

type evBrakeDone struct{ gen uint64 }

func (e evBrakeDone) String() string { return fmt.Sprintf("brake-done(%d)", e.gen) }

type evStall struct{ gen uint64 }

func (e evStall) String() string { return fmt.Sprintf("stall(%d)", e.gen) }

type evTrailCheck struct{ gen uint64 }

func (e evTrailCheck) String() string { return fmt.Sprintf("trail-check(%d)", e.gen) }

type evRamp struct{ gen uint64 }

func (e evRamp) String() string { return fmt.Sprintf("ramp(%d)", e.gen) }

type evDebounce struct {
	Block layout.BlockI
	gen   uint64
}

func (e evDebounce) String() string { return fmt.Sprintf("debounce(%d)", e.Block) }
