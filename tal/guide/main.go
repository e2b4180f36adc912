// Package guide drives trains along routes: one coordinator per train, fed by layout events.
//
// Until Run is called, a Guide is synchronous: every call handles all the events it caused before returning.
// Run hands each coordinator its own goroutine.
package guide

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/journal"
	"nyiyui.ca/hato/shingo/notify"
	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/interlock"
	"nyiyui.ca/hato/shingo/tal/layout"
	"nyiyui.ca/hato/shingo/tal/plan"
)

var (
	ErrUnknownTrain = errors.New("unknown train")
	ErrTrainExists  = errors.New("train already registered")
	ErrNotIdle      = errors.New("train not idle")
	ErrNotInError   = errors.New("train not in error")
	ErrInError      = errors.New("train in error")
)

// DriveRequest asks for a train to be driven to Goal.
type DriveRequest struct {
	// ID is generated if zero.
	ID    uuid.UUID      `json:"id"`
	Train shingo.TrainID `json:"train"`
	Goal  layout.BlockI  `json:"goal"`
	// MaxSpeed caps the train's speed if positive.
	MaxSpeed shingo.Speed `json:"max_speed"`
}

type Guide struct {
	conf      Conf
	track     *tal.Track
	planner   *plan.Planner
	interlock *interlock.Controller
	cmd       conn.Commander
	rec       journal.Recorder
	clock     Clock

	lock   sync.RWMutex
	trains map[shingo.TrainID]*coordinator
	async  bool
	ctx    context.Context
	wg     sync.WaitGroup

	drainLock sync.Mutex
	powered   atomic.Bool
	seq       atomic.Uint64

	snapshotsS *notify.MultiplexerSender[Snapshot]
	snapshots  *notify.Multiplexer[Snapshot]
}

func New(t *tal.Track, cmd conn.Commander, rec journal.Recorder, conf Conf) *Guide {
	conf.setDefaults()
	if rec == nil {
		rec = journal.Discard
	}
	g := &Guide{
		conf:      conf,
		track:     t,
		planner:   plan.New(t, conf.Metric),
		interlock: interlock.New(t, cmd, rec),
		cmd:       cmd,
		rec:       rec,
		clock:     conf.Clock,
		trains:    map[shingo.TrainID]*coordinator{},
	}
	g.powered.Store(true)
	g.snapshotsS, g.snapshots = notify.NewMultiplexerSender[Snapshot]("guide")
	return g
}

func (g *Guide) Track() *tal.Track { return g.track }

func (g *Guide) Interlock() *interlock.Controller { return g.interlock }

// SnapshotMux publishes a Snapshot after every change.
func (g *Guide) SnapshotMux() *notify.Multiplexer[Snapshot] { return g.snapshots }

func (g *Guide) Powered() bool { return g.powered.Load() }

// Register puts train under automated control, standing on block b.
func (g *Guide) Register(train shingo.TrainID, b layout.BlockI, tc TrainConf) error {
	if train == shingo.NoTrain {
		return fmt.Errorf("register: %s is not a train", train)
	}
	if !g.track.Layout.ValidBlock(b) {
		return fmt.Errorf("register %s: invalid block %d", train, b)
	}
	g.lock.Lock()
	if _, ok := g.trains[train]; ok {
		g.lock.Unlock()
		return fmt.Errorf("register %s: %w", train, ErrTrainExists)
	}
	if err := g.track.Place(b, train); err != nil {
		g.lock.Unlock()
		return fmt.Errorf("register %s: %w", train, err)
	}
	c := newCoordinator(g, train, b, tc)
	g.trains[train] = c
	if g.async {
		g.start(c)
	}
	g.lock.Unlock()
	zap.S().Infow("registered", "train", train, "block", b, "conf", c.conf)
	g.settle()
	return nil
}

func (g *Guide) get(train shingo.TrainID) (*coordinator, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	c, ok := g.trains[train]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrain, train)
	}
	return c, nil
}

// Drive starts driving a train to a goal. The train must be idle.
// If no route exists, the train stays idle and the error wraps tal.ErrNoPath.
func (g *Guide) Drive(req DriveRequest) (uuid.UUID, error) {
	c, err := g.get(req.Train)
	if err != nil {
		return uuid.Nil, err
	}
	if !g.track.Layout.ValidBlock(req.Goal) {
		return uuid.Nil, fmt.Errorf("drive %s: invalid goal %d", req.Train, req.Goal)
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	zap.S().Infow("drive", "train", req.Train, "goal", req.Goal, "request", req.ID)
	c.lock.Lock()
	err = c.drive(req)
	c.lock.Unlock()
	g.settle()
	return req.ID, err
}

// Cancel removes a train from automated control, releasing every block it holds. It works in every state.
// Once Cancel returns, nothing more is sent for the train.
func (g *Guide) Cancel(train shingo.TrainID) error {
	c, err := g.get(train)
	if err != nil {
		return err
	}
	c.lock.Lock()
	released := c.cancel()
	c.lock.Unlock()
	g.lock.Lock()
	delete(g.trains, train)
	done := c.done
	g.lock.Unlock()
	if done != nil {
		c.kick()
		<-done
	}
	zap.S().Infow("cancelled", "train", train, "released", released)
	if len(released) > 0 {
		g.wakeOthers(train)
	}
	g.settle()
	return nil
}

// Park stops a train where it is and gives back everything but the block it stands on.
func (g *Guide) Park(train shingo.TrainID) error {
	c, err := g.get(train)
	if err != nil {
		return err
	}
	c.lock.Lock()
	err = c.park()
	c.lock.Unlock()
	g.settle()
	return err
}

// Reset returns a train in error to idle on block b, after an operator has found it there.
func (g *Guide) Reset(train shingo.TrainID, b layout.BlockI) error {
	c, err := g.get(train)
	if err != nil {
		return err
	}
	if !g.track.Layout.ValidBlock(b) {
		return fmt.Errorf("reset %s: invalid block %d", train, b)
	}
	c.lock.Lock()
	err = c.reset(b)
	c.lock.Unlock()
	g.settle()
	return err
}

// State returns a train's state, and its error if it has one.
func (g *Guide) State(train shingo.TrainID) (State, error) {
	c, err := g.get(train)
	if err != nil {
		return 0, err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state, c.err
}

// Handle takes in a value from the layout.
func (g *Guide) Handle(v conn.Val) {
	zap.S().Debugw("val", "val", v)
	y := g.track.Layout
	switch v := v.(type) {
	case conn.ValOccupancy:
		if !y.ValidBlock(v.Block) {
			zap.S().Warnw("occupancy for unknown block", "val", v)
			return
		}
		occ := tal.OccupancyClear
		if v.Occupied {
			occ = tal.OccupancyOccupied
		}
		prev := g.track.Occupancy(v.Block)
		if !g.track.SetOccupancy(v.Block, occ) {
			break
		}
		holder, held := g.track.Holder(v.Block)
		switch {
		case held && v.Occupied:
			g.post(holder, evOccupied{v.Block})
		case held:
			g.post(holder, evCleared{v.Block})
		case v.Occupied && prev == tal.OccupancyClear:
			g.unexplained(v.Block)
		case v.Occupied:
			zap.S().Infow("occupied at startup", "block", y.Blocks[v.Block].Comment)
		}
		if !v.Occupied {
			g.wakeOthers(shingo.NoTrain)
		}
	case conn.ValSwitch:
		if v.Switch < 0 || int(v.Switch) >= len(y.Switches) {
			zap.S().Warnw("feedback for unknown switch", "val", v)
			return
		}
		g.interlock.Feedback(v.Switch, v.Position)
		g.wakeOthers(shingo.NoTrain)
	case conn.ValFault:
		zap.S().Warnw("fault", "train", v.Train, "message", v.Message)
		g.rec.Record(journal.Entry{Kind: journal.KindFault, Train: v.Train, Block: layout.NoBlock, Detail: v.Message})
		if v.Train != shingo.NoTrain {
			g.post(v.Train, evFault{v.Message})
		}
	case conn.ValPower:
		zap.S().Infow("power", "on", v.On)
		g.powered.Store(v.On)
		for _, c := range g.coordinators() {
			c.post(evPower{v.On})
		}
	default:
		zap.S().Warnw("unknown val", "val", v)
		return
	}
	g.settle()
}

// unexplained hands an occupancy nobody accounts for to the trains next to it, or to every train if none are.
func (g *Guide) unexplained(b layout.BlockI) {
	y := g.track.Layout
	cs := g.coordinators()
	blame := []*coordinator{}
	for _, c := range cs {
		c.lock.Lock()
		head, removed := c.head, c.removed
		c.lock.Unlock()
		if !removed && y.Adjacent(head, b) {
			blame = append(blame, c)
		}
	}
	if len(blame) == 0 {
		blame = cs
	}
	zap.S().Warnw("unexplained occupancy", "block", y.Blocks[b].Comment, "trains", len(blame))
	for _, c := range blame {
		c.post(evUnexplained{b})
	}
}

func (g *Guide) post(train shingo.TrainID, ev event) {
	c, err := g.get(train)
	if err != nil {
		zap.S().Warnw("event for unknown train", "train", train, "event", ev)
		return
	}
	c.post(ev)
}

func (g *Guide) wakeOthers(except shingo.TrainID) {
	for _, c := range g.coordinators() {
		if c.id != except {
			c.post(evWake{})
		}
	}
}

// coordinators returns every coordinator in train order.
func (g *Guide) coordinators() []*coordinator {
	g.lock.RLock()
	defer g.lock.RUnlock()
	res := make([]*coordinator, 0, len(g.trains))
	for _, c := range g.trains {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].id < res[j].id })
	return res
}

func (g *Guide) send(r conn.Req, train shingo.TrainID, request uuid.UUID) {
	g.rec.Record(journal.Entry{Kind: journal.KindCommand, Train: train, Block: layout.NoBlock, Detail: r.String(), Request: request})
	if err := g.cmd.Send(r); err != nil {
		zap.S().Warnw("send failed", "req", r, "err", err)
	}
}

func (g *Guide) isAsync() bool {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.async
}

// kick is called from timers.
func (g *Guide) kick() {
	if !g.isAsync() {
		g.drain()
	}
}

// settle brings signals and the snapshot up to date, first handling every pending event if synchronous.
func (g *Guide) settle() {
	if g.isAsync() {
		g.refresh()
		return
	}
	g.drain()
}

// drain handles pending events one train at a time, in train order, until there are none.
func (g *Guide) drain() {
	g.drainLock.Lock()
	defer g.drainLock.Unlock()
	for {
		progressed := false
		for _, c := range g.coordinators() {
			if ev, ok := c.pop(); ok {
				c.handle(ev)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	g.refresh()
}

func (g *Guide) refresh() {
	g.interlock.Refresh()
	g.snapshotsS.Send(g.Snapshot())
}

// Run handles values until vals is closed or ctx is done, with each coordinator on its own goroutine.
// The coordinators' goroutines have exited when Run returns.
func (g *Guide) Run(ctx context.Context, vals <-chan conn.Val) error {
	g.lock.Lock()
	if g.async {
		g.lock.Unlock()
		return errors.New("already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	g.async = true
	g.ctx = ctx
	for _, c := range g.trains {
		g.start(c)
	}
	g.lock.Unlock()
	g.refresh()
	defer func() {
		cancel()
		g.wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-vals:
			if !ok {
				return nil
			}
			g.Handle(v)
		}
	}
}

// start must be called with lock held.
func (g *Guide) start(c *coordinator) {
	c.done = make(chan struct{})
	g.wg.Add(1)
	go func(done chan struct{}) {
		defer g.wg.Done()
		defer close(done)
		c.run(g.ctx)
	}(c.done)
}

func (c *coordinator) run(ctx context.Context) {
	// anything posted before Run
	c.kick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.signal:
		}
		handled := false
		for {
			ev, ok := c.pop()
			if !ok {
				break
			}
			c.handle(ev)
			handled = true
		}
		c.lock.Lock()
		removed := c.removed
		c.lock.Unlock()
		if removed {
			return
		}
		if handled {
			c.g.refresh()
		}
	}
}

// Snapshot is the state of the track and every train.
type Snapshot struct {
	Seq    uint64          `json:"seq"`
	Track  tal.Snapshot    `json:"track"`
	Trains []TrainSnapshot `json:"trains"`
}

type TrainSnapshot struct {
	Train   shingo.TrainID  `json:"train"`
	Comment string          `json:"comment"`
	State   State           `json:"state"`
	Block   layout.BlockI   `json:"block"`
	Goal    layout.BlockI   `json:"goal"`
	Route   []layout.BlockI `json:"route"`
	Speed   shingo.Speed    `json:"speed"`
	Request uuid.UUID       `json:"request"`
	Error   string          `json:"error,omitempty"`
}

func (g *Guide) Snapshot() Snapshot {
	s := Snapshot{
		Seq:    g.seq.Add(1),
		Track:  g.track.Snapshot(),
		Trains: []TrainSnapshot{},
	}
	for _, c := range g.coordinators() {
		c.lock.Lock()
		if !c.removed {
			s.Trains = append(s.Trains, c.snapshot())
		}
		c.lock.Unlock()
	}
	return s
}
