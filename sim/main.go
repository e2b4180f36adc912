// Package sim is a simulated layout, usable anywhere a conn.Adapter is.
//
// Trains run block to block along whatever the switches are actually set to, entering the next block before leaving the
// previous one. Nothing stops a train from running into an occupied block: that is reported as a collision.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	. "nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/notify"
	"nyiyui.ca/hato/shingo/tal/layout"
	"nyiyui.ca/hato/shingo/tal/plan"
)

var ErrUnknownTrain = errors.New("unknown train")

const valsSize = 1024

type Conf struct {
	Layout *layout.Layout
	// Relation maps speed steps to velocity (µm/s) for every train.
	Relation plan.Relation
	// SwitchTime is how long a switch takes to move and report back.
	SwitchTime time.Duration
	// Tick is how often Run steps the simulation.
	Tick time.Duration
}

type train struct {
	block layout.BlockI
	speed Speed
	dir   layout.Direction
	// travelled in the current block, in µm
	travelled int64
}

type pendingSwitch struct {
	at       time.Duration
	switch_  layout.SwitchI
	position layout.Position
}

type Simulator struct {
	conf Conf

	lock       sync.Mutex
	now        time.Duration
	power      bool
	trains     map[TrainID]*train
	occupants  []int
	switches   []layout.Position
	moving     []bool
	pending    []pendingSwitch
	aspects    []layout.Aspect
	collisions int

	vals    chan conn.Val
	events  *notify.Multiplexer[Event]
	eventsS *notify.MultiplexerSender[Event]
}

func New(conf Conf) *Simulator {
	if len(conf.Relation.Coeffs) == 0 {
		conf.Relation = plan.Linear(1000)
	}
	if conf.Tick <= 0 {
		conf.Tick = 100 * time.Millisecond
	}
	y := conf.Layout
	s := &Simulator{
		conf:      conf,
		power:     true,
		trains:    map[TrainID]*train{},
		occupants: make([]int, len(y.Blocks)),
		switches:  make([]layout.Position, len(y.Switches)),
		moving:    make([]bool, len(y.Switches)),
		aspects:   make([]layout.Aspect, len(y.Signals)),
		vals:      make(chan conn.Val, valsSize),
	}
	s.eventsS, s.events = notify.NewMultiplexerSender[Event]("sim")
	return s
}

func (s *Simulator) Vals() <-chan conn.Val { return s.vals }

func (s *Simulator) Events() *notify.Multiplexer[Event] { return s.events }

// emit must be called with lock held.
func (s *Simulator) emit(v conn.Val) {
	select {
	case s.vals <- v:
	default:
		zap.S().Warnw("sim: vals full, dropped", "val", v)
	}
}

// Place puts a train on a block, stopped.
func (s *Simulator) Place(t TrainID, b layout.BlockI) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if old, ok := s.trains[t]; ok {
		s.leave(old.block)
	}
	s.trains[t] = &train{block: b, dir: layout.DirectionForward}
	s.enter(t, b)
}

// Report emits the occupancy of every block and the position of every switch, as a layout does on startup.
func (s *Simulator) Report() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for bi, n := range s.occupants {
		s.emit(conn.ValOccupancy{Block: layout.BlockI(bi), Occupied: n > 0})
	}
	for si, p := range s.switches {
		s.emit(conn.ValSwitch{Switch: layout.SwitchI(si), Position: p})
	}
}

func (s *Simulator) SetPower(on bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.power == on {
		return
	}
	s.power = on
	s.emit(conn.ValPower{On: on})
}

func (s *Simulator) Send(r conn.Req) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch r := r.(type) {
	case conn.ReqSpeed:
		t, ok := s.trains[r.Train]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTrain, r.Train)
		}
		t.speed = r.Speed
		if !r.Speed.Moving() {
			t.speed = SpeedStop
		}
		t.dir = r.Direction
	case conn.ReqSwitch:
		if r.Switch < 0 || int(r.Switch) >= len(s.switches) {
			return fmt.Errorf("unknown switch %d", r.Switch)
		}
		s.moving[r.Switch] = true
		s.pending = append(s.pending, pendingSwitch{at: s.now + s.conf.SwitchTime, switch_: r.Switch, position: r.Position})
	case conn.ReqSignal:
		if r.Signal < 0 || int(r.Signal) >= len(s.aspects) {
			return fmt.Errorf("unknown signal %d", r.Signal)
		}
		s.aspects[r.Signal] = r.Aspect
		s.eventsS.Send(EventSignal{Signal: r.Signal, Aspect: r.Aspect})
	default:
		return fmt.Errorf("unsupported req %T", r)
	}
	return nil
}

// Step advances the simulation by d. Each train moves at most one block per step.
func (s *Simulator) Step(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.now += d
	pending := s.pending[:0]
	for _, ps := range s.pending {
		if ps.at > s.now {
			pending = append(pending, ps)
			continue
		}
		s.switches[ps.switch_] = ps.position
		s.moving[ps.switch_] = false
		s.emit(conn.ValSwitch{Switch: ps.switch_, Position: ps.position})
		s.eventsS.Send(EventSwitch{Switch: ps.switch_, Position: ps.position})
	}
	s.pending = pending
	if !s.power {
		return
	}
	y := s.conf.Layout
	for _, id := range s.trainIDs() {
		t := s.trains[id]
		if !t.speed.Moving() {
			continue
		}
		t.travelled += s.conf.Relation.Velocity(t.speed) * int64(d) / int64(time.Second)
		length := y.Blocks[t.block].Length
		if length <= 0 {
			length = 1
		}
		if t.travelled < length {
			continue
		}
		t.travelled = 0
		s.cross(id, t)
	}
}

// cross must be called with lock held.
func (s *Simulator) cross(id TrainID, t *train) {
	y := s.conf.Layout
	next := layout.NoBlock
	waiting := false
	for _, arc := range y.Neighbors(t.block) {
		if y.Edges[arc.Edge].Direction != t.dir {
			continue
		}
		if arc.Switch != layout.NoSwitch {
			if s.moving[arc.Switch] {
				waiting = true
				continue
			}
			if s.switches[arc.Switch] != arc.Position {
				continue
			}
		}
		next = arc.To
		break
	}
	if next == layout.NoBlock && waiting {
		// stand at the end of the block until the switch settles
		t.travelled = y.Blocks[t.block].Length
		return
	}
	if next == layout.NoBlock {
		t.speed = SpeedStop
		s.emit(conn.ValFault{Train: id, Message: fmt.Sprintf("ran out of track in %s", y.Blocks[t.block].Comment)})
		return
	}
	prev := t.block
	t.block = next
	s.enter(id, next)
	s.leave(prev)
	s.eventsS.Send(EventMove{Train: id, From: prev, To: next})
}

func (s *Simulator) enter(id TrainID, b layout.BlockI) {
	s.occupants[b]++
	if s.occupants[b] == 1 {
		s.emit(conn.ValOccupancy{Block: b, Occupied: true})
		return
	}
	s.collisions++
	others := []TrainID{}
	for oid, o := range s.trains {
		if o.block == b {
			others = append(others, oid)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
	zap.S().Errorw("sim: collision", "block", b, "trains", others)
	s.emit(conn.ValFault{Train: NoTrain, Message: fmt.Sprintf("collision in %s", s.conf.Layout.Blocks[b].Comment)})
	s.eventsS.Send(EventCollision{Block: b, Trains: others})
}

func (s *Simulator) leave(b layout.BlockI) {
	s.occupants[b]--
	if s.occupants[b] == 0 {
		s.emit(conn.ValOccupancy{Block: b, Occupied: false})
	}
}

// trainIDs must be called with lock held.
func (s *Simulator) trainIDs() []TrainID {
	ids := make([]TrainID, 0, len(s.trains))
	for id := range s.trains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Position returns where a train is.
func (s *Simulator) Position(id TrainID) (layout.BlockI, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.trains[id]
	if !ok {
		return layout.NoBlock, false
	}
	return t.block, true
}

func (s *Simulator) Speed(id TrainID) Speed {
	s.lock.Lock()
	defer s.lock.Unlock()
	if t, ok := s.trains[id]; ok {
		return t.speed
	}
	return SpeedStop
}

func (s *Simulator) Collisions() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.collisions
}

func (s *Simulator) Aspect(sig layout.SignalI) layout.Aspect {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.aspects[sig]
}

// Run steps the simulation every Tick until ctx is done. Vals is closed when it returns.
func (s *Simulator) Run(ctx context.Context) {
	defer close(s.vals)
	ticker := time.NewTicker(s.conf.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step(s.conf.Tick)
		}
	}
}
