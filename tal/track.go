package tal

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/journal"
	"nyiyui.ca/hato/shingo/tal/layout"
)

// Occupancy is what a block's sensor last said.
type Occupancy int

const (
	OccupancyUnknown Occupancy = iota
	OccupancyClear
	OccupancyOccupied
)

func (o Occupancy) String() string {
	switch o {
	case OccupancyUnknown:
		return "unknown"
	case OccupancyClear:
		return "clear"
	case OccupancyOccupied:
		return "occupied"
	default:
		return fmt.Sprintf("occupancy%d", int(o))
	}
}

func (o Occupancy) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// BlockState is the live state of a block.
type BlockState struct {
	Occupancy Occupancy      `json:"occupancy"`
	Holder    shingo.TrainID `json:"holder"`
	// Seq is the sequence number of the reservation held, or 0.
	Seq uint64 `json:"seq"`
}

// Track is the live state of a layout: occupancy, switch positions and the reservation ledger.
// All of it is behind one lock, so every method is atomic with respect to every other.
type Track struct {
	Layout *layout.Layout

	lock     sync.Mutex
	blocks   []BlockState
	switches []SwitchState
	seq      uint64
	rec      journal.Recorder
}

// New returns a Track for y with every block's occupancy unknown and every switch assumed straight.
func New(y *layout.Layout, rec journal.Recorder) *Track {
	if rec == nil {
		rec = journal.Discard
	}
	t := &Track{
		Layout:   y,
		blocks:   make([]BlockState, len(y.Blocks)),
		switches: make([]SwitchState, len(y.Switches)),
		rec:      rec,
	}
	for i := range t.switches {
		t.switches[i] = SwitchState{Position: layout.PositionStraight, Confirmed: true}
	}
	return t
}

func (t *Track) Occupancy(b layout.BlockI) Occupancy {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.blocks[b].Occupancy
}

// SetOccupancy records what a sensor reported. Only the inbound event path calls this.
// It reports whether the occupancy changed.
func (t *Track) SetOccupancy(b layout.BlockI, o Occupancy) (changed bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	prev := t.blocks[b].Occupancy
	t.blocks[b].Occupancy = o
	return prev != o
}

func (t *Track) SwitchPosition(s layout.SwitchI) layout.Position {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.switches[s].Position
}

func (t *Track) Switch(s layout.SwitchI) SwitchState {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.switches[s]
}

// CanSetSwitch reports whether requester could set switch s to p right now.
// It returns nil or an *InterlockError.
func (t *Track) CanSetSwitch(s layout.SwitchI, p layout.Position, requester shingo.TrainID) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.checkSwitch(s, p, requester)
}

// checkSwitch must be called with lock held.
func (t *Track) checkSwitch(s layout.SwitchI, p layout.Position, requester shingo.TrainID) error {
	return checkSwitch(t.Layout, t.blocks, t.switches, s, p, requester)
}

// CanSetSwitch is Track.CanSetSwitch against st.
func (st State) CanSetSwitch(y *layout.Layout, s layout.SwitchI, p layout.Position, requester shingo.TrainID) error {
	return checkSwitch(y, st.Blocks, st.Switches, s, p, requester)
}

// A switch may move only if no block on its currently enabled path is occupied or held, except by requester itself.
func checkSwitch(y *layout.Layout, blocks []BlockState, switches []SwitchState, s layout.SwitchI, p layout.Position, requester shingo.TrainID) error {
	if p < 0 || int(p) >= y.Switches[s].Positions {
		return fmt.Errorf("switch %d has no position %s", s, p)
	}
	cur := switches[s].Position
	if cur == p {
		return nil
	}
	for _, b := range y.EnabledBlocks(s, cur) {
		st := blocks[b]
		if st.Holder != shingo.NoTrain && st.Holder != requester {
			return &InterlockError{Switch: s, From: cur, To: p, Block: b, Holder: st.Holder}
		}
		// only a train standing on its own held block may move a switch under itself
		if st.Occupancy == OccupancyOccupied && (requester == shingo.NoTrain || st.Holder != requester) {
			return &InterlockError{Switch: s, From: cur, To: p, Block: b, Holder: st.Holder, Occupied: true}
		}
	}
	return nil
}

// SetSwitchPosition sets switch s to p on behalf of requester (shingo.NoTrain for requests from outside any train).
// The switch stays unconfirmed until SwitchFeedback.
func (t *Track) SetSwitchPosition(s layout.SwitchI, p layout.Position, requester shingo.TrainID) (changed bool, err error) {
	changes, err := t.SetSwitchPositions([]SwitchRequest{{Switch: s, Position: p}}, requester)
	return len(changes) > 0, err
}

// SetSwitchPositions sets all of reqs or none of them.
// It returns the requests that actually changed a position.
func (t *Track) SetSwitchPositions(reqs []SwitchRequest, requester shingo.TrainID) (changes []SwitchRequest, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for _, req := range reqs {
		err = t.checkSwitch(req.Switch, req.Position, requester)
		if err != nil {
			return nil, err
		}
	}
	for _, req := range reqs {
		if t.switches[req.Switch].Position == req.Position {
			continue
		}
		t.switches[req.Switch] = SwitchState{Position: req.Position}
		changes = append(changes, req)
		t.rec.Record(journal.Entry{
			Kind:   journal.KindSwitch,
			Train:  requester,
			Block:  layout.NoBlock,
			Detail: req.String(),
		})
	}
	return changes, nil
}

// SwitchFeedback records the position a switch reported.
// If it disagrees with the commanded position, the switch stays unconfirmed and resend is true.
func (t *Track) SwitchFeedback(s layout.SwitchI, actual layout.Position) (resend bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	st := &t.switches[s]
	if st.Position == actual {
		st.Confirmed = true
		return false
	}
	zap.S().Warnw("switch feedback mismatch",
		"switch", s,
		"commanded", st.Position,
		"actual", actual)
	st.Confirmed = false
	return true
}

// State returns a copy of the live state.
func (t *Track) State() State {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.state()
}

func (t *Track) state() State {
	st := State{
		Blocks:   make([]BlockState, len(t.blocks)),
		Switches: make([]SwitchState, len(t.switches)),
	}
	copy(st.Blocks, t.blocks)
	copy(st.Switches, t.switches)
	return st
}

// State is a consistent copy of a Track's live state.
type State struct {
	Blocks   []BlockState  `json:"blocks"`
	Switches []SwitchState `json:"switches"`
}
