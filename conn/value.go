package conn

import (
	"fmt"

	. "nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal/layout"
)

// Val is something the layout reported.
type Val interface {
	isVal()
	fmt.Stringer
}

// ValOccupancy is a block's occupancy sensor changing.
type ValOccupancy struct {
	Block    layout.BlockI
	Occupied bool
}

func (_ ValOccupancy) isVal() {}

func (v ValOccupancy) String() string {
	verb := map[bool]string{true: "occupied", false: "clear"}[v.Occupied]
	return fmt.Sprintf("occupancy(%d %s)", v.Block, verb)
}

// ValSwitch is the position a switch reports it is in.
type ValSwitch struct {
	Switch   layout.SwitchI
	Position layout.Position
}

func (_ ValSwitch) isVal() {}

func (v ValSwitch) String() string {
	return fmt.Sprintf("switch-feedback(%d %s)", v.Switch, v.Position)
}

// ValFault is a fault. Train is NoTrain if the fault isn't attributed to a train.
type ValFault struct {
	Train   TrainID
	Message string
}

func (_ ValFault) isVal() {}

func (v ValFault) String() string {
	return fmt.Sprintf("fault(%s %q)", v.Train, v.Message)
}

// ValPower is track power being switched on or off.
type ValPower struct {
	On bool
}

func (_ ValPower) isVal() {}

func (v ValPower) String() string {
	return fmt.Sprintf("power(%t)", v.On)
}

// Req is a command for the layout.
type Req interface {
	isReq()
	fmt.Stringer
}

type ReqSpeed struct {
	Train     TrainID
	Speed     Speed
	Direction layout.Direction
}

func (_ ReqSpeed) isReq() {}

func (r ReqSpeed) String() string {
	return fmt.Sprintf("speed(%s %s %s)", r.Train, r.Speed, r.Direction)
}

type ReqSwitch struct {
	Switch   layout.SwitchI
	Position layout.Position
}

func (_ ReqSwitch) isReq() {}

func (r ReqSwitch) String() string {
	return fmt.Sprintf("switch(%d %s)", r.Switch, r.Position)
}

type ReqSignal struct {
	Signal layout.SignalI
	Aspect layout.Aspect
}

func (_ ReqSignal) isReq() {}

func (r ReqSignal) String() string {
	return fmt.Sprintf("signal(%d %s)", r.Signal, r.Aspect)
}
