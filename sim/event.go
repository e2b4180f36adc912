package sim

import (
	"fmt"

	. "nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal/layout"
)

// Event is something that happened in the simulation.
type Event interface {
	fmt.Stringer
}

type EventMove struct {
	Train TrainID
	From  layout.BlockI
	To    layout.BlockI
}

func (em EventMove) String() string {
	return fmt.Sprintf("%s moved %d→%d", em.Train, em.From, em.To)
}

// EventCollision is two trains ending up in the same block.
type EventCollision struct {
	Block  layout.BlockI
	Trains []TrainID
}

func (ec EventCollision) String() string {
	return fmt.Sprintf("collision in %d: %v", ec.Block, ec.Trains)
}

type EventSwitch struct {
	Switch   layout.SwitchI
	Position layout.Position
}

func (es EventSwitch) String() string {
	return fmt.Sprintf("switch %d set %s", es.Switch, es.Position)
}

type EventSignal struct {
	Signal layout.SignalI
	Aspect layout.Aspect
}

func (es EventSignal) String() string {
	return fmt.Sprintf("signal %d shows %s", es.Signal, es.Aspect)
}
