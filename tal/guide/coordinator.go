package guide

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/journal"
	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/layout"
	"nyiyui.ca/hato/shingo/tal/plan"
)

type timer struct {
	gen uint64
	t   Timer
}

func (tm *timer) stop() {
	tm.gen++
	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
}

func (tm *timer) running() bool { return tm.t != nil }

// fired reports whether gen is the live timer, and forgets it if so.
func (tm *timer) fired(gen uint64) bool {
	if tm.t == nil || gen != tm.gen {
		return false
	}
	tm.t = nil
	return true
}

// coordinator drives one train.
type coordinator struct {
	g    *Guide
	id   shingo.TrainID
	conf TrainConf

	mailLock sync.Mutex
	mail     []event
	signal   chan struct{}
	// done is closed when the coordinator's goroutine exits; nil unless running. Guarded by the Guide's lock.
	done chan struct{}

	// lock guards everything below. It is only held while handling one event or request.
	lock     sync.Mutex
	removed  bool
	state    State
	head     layout.BlockI
	goal     layout.BlockI
	route    plan.Route
	request  uuid.UUID
	maxSpeed shingo.Speed
	speed    shingo.Speed
	// sent is the last speed actually sent; it trails speed while ramping.
	sent shingo.Speed
	dir  layout.Direction
	err  error
	// denied is the block the last extend could not get, or NoBlock.
	denied  layout.BlockI
	replans int

	brake    timer
	stall    timer
	trail    timer
	ramp     timer
	debounce map[layout.BlockI]*timer
}

func newCoordinator(g *Guide, id shingo.TrainID, head layout.BlockI, tc TrainConf) *coordinator {
	tc.setDefaults()
	return &coordinator{
		g:        g,
		id:       id,
		conf:     tc,
		signal:   make(chan struct{}, 1),
		state:    StateIdle,
		head:     head,
		goal:     layout.NoBlock,
		speed:    shingo.SpeedStop,
		sent:     shingo.SpeedStop,
		dir:      layout.DirectionForward,
		denied:   layout.NoBlock,
		debounce: map[layout.BlockI]*timer{},
	}
}

func (c *coordinator) post(ev event) {
	c.mailLock.Lock()
	if _, ok := ev.(evWake); ok && len(c.mail) > 0 {
		if _, ok := c.mail[len(c.mail)-1].(evWake); ok {
			c.mailLock.Unlock()
			return
		}
	}
	c.mail = append(c.mail, ev)
	c.mailLock.Unlock()
	c.kick()
}

func (c *coordinator) kick() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *coordinator) pop() (event, bool) {
	c.mailLock.Lock()
	defer c.mailLock.Unlock()
	if len(c.mail) == 0 {
		return nil, false
	}
	ev := c.mail[0]
	c.mail = c.mail[1:]
	return ev, true
}

func (c *coordinator) handle(ev event) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.removed {
		return
	}
	zap.S().Debugw("handle", "train", c.id, "state", c.state, "event", ev)
	if c.state == StateError {
		// nothing moves a train in error except Reset and Cancel
		return
	}
	switch ev := ev.(type) {
	case evOccupied:
		c.onOccupied(ev.Block)
	case evCleared:
		c.onCleared(ev.Block)
	case evUnexplained:
		c.fail(&tal.ContradictionError{Train: c.id, Block: ev.Block, Believed: c.head}, outcomeContradiction)
	case evWake:
		switch c.state {
		case StateAdvancing, StateBraking, StateStoppedAtSignal:
			c.advance()
		}
	case evFault:
		c.fail(fmt.Errorf("%w: %s", tal.ErrFault, ev.Message), outcomeFault)
	case evPower:
		c.onPower(ev.On)
	case evBrakeDone:
		if c.brake.fired(ev.gen) && c.state == StateBraking {
			c.step(outcomeExhausted)
		}
	case evStall:
		if !c.stall.fired(ev.gen) || c.state != StateAdvancing || !c.speed.Moving() || !c.g.Powered() {
			return
		}
		c.fail(fmt.Errorf("%w: %s did not leave %s within %s", tal.ErrStallTimeout, c.id, c.blockName(c.head), c.g.conf.StallTimeout), outcomeStall)
	case evTrailCheck:
		if !c.trail.fired(ev.gen) || c.state != StateAdvancing || !c.g.Powered() {
			return
		}
		c.checkTrail()
	case evRamp:
		if c.ramp.fired(ev.gen) {
			c.rampStep()
		}
	case evDebounce:
		tm, ok := c.debounce[ev.Block]
		if !ok || !tm.fired(ev.gen) {
			return
		}
		delete(c.debounce, ev.Block)
		if c.g.track.Occupancy(ev.Block) == tal.OccupancyClear && !c.ahead(ev.Block) {
			c.release(ev.Block)
		}
	default:
		panic(fmt.Sprintf("unknown event %T", ev))
	}
}

func (c *coordinator) blockName(b layout.BlockI) string {
	if !c.g.track.Layout.ValidBlock(b) {
		return fmt.Sprint(b)
	}
	return c.g.track.Layout.Blocks[b].Comment
}

// step applies o to the state, recording the transition. It reports whether o was allowed.
func (c *coordinator) step(o outcome) bool {
	s2, ok := next(c.state, o)
	if !ok {
		zap.S().Warnw("transition not allowed", "train", c.id, "state", c.state, "outcome", o)
		return false
	}
	if s2 != c.state {
		zap.S().Infow("transition", "train", c.id, "from", c.state, "to", s2, "outcome", o)
		c.g.rec.Record(journal.Entry{
			Kind:    journal.KindTransition,
			Train:   c.id,
			Block:   c.head,
			Detail:  fmt.Sprintf("%s→%s (%s)", c.state, s2, o),
			Request: c.request,
		})
	}
	c.state = s2
	return true
}

func (c *coordinator) headIdx() int {
	if len(c.route.Blocks) == 0 {
		return -1
	}
	return c.route.Index(c.head)
}

// ahead reports whether b is on the route past the head.
func (c *coordinator) ahead(b layout.BlockI) bool {
	hi := c.headIdx()
	return hi >= 0 && c.route.Index(b) > hi
}

func (c *coordinator) drive(req DriveRequest) error {
	if c.state != StateIdle {
		return fmt.Errorf("%w: %s is %s", ErrNotIdle, c.id, c.state)
	}
	c.request = req.ID
	c.goal = req.Goal
	c.maxSpeed = req.MaxSpeed
	c.replans = 0
	c.err = nil
	c.step(outcomeDrive)
	if c.head == c.goal {
		c.step(outcomeArrived)
		return nil
	}
	r, err := c.g.planner.Plan(c.id, c.head, c.goal, plan.Options{})
	if err != nil {
		c.err = err
		c.step(outcomeNoPath)
		return err
	}
	zap.S().Infow("route", "train", c.id, "route", r.String(), "request", req.ID)
	c.route = r
	c.advance()
	return nil
}

// extend reserves route blocks past the head up to the lookahead, setting each one's entry switch.
// It stops at the first block it can't get and remembers it in denied.
func (c *coordinator) extend() {
	c.denied = layout.NoBlock
	hi := c.headIdx()
	if hi < 0 {
		return
	}
	for j := hi + 1; j < len(c.route.Blocks) && j <= hi+c.g.conf.Lookahead; j++ {
		b := c.route.Blocks[j]
		holder, _ := c.g.track.Holder(b)
		had := holder == c.id
		if err := c.g.track.TryReserve(b, c.id); err != nil {
			zap.S().Debugw("extend denied", "train", c.id, "block", b, "err", err)
			c.denied = b
			return
		}
		if err := c.g.interlock.AlignFor(c.route.Edges[j-1:j], c.id); err != nil {
			zap.S().Debugw("extend align failed", "train", c.id, "block", b, "err", err)
			if !had {
				// never acted on, so nobody needs waking
				c.g.track.Release(b, c.id)
			}
			c.denied = b
			return
		}
	}
}

// authority counts held blocks past the head the train may enter now, and whether they reach the goal.
func (c *coordinator) authority() (n int, toGoal bool) {
	hi := c.headIdx()
	if hi < 0 {
		return 0, false
	}
	y := c.g.track.Layout
	st := c.g.track.State()
	for j := hi + 1; j < len(c.route.Blocks); j++ {
		b := c.route.Blocks[j]
		if st.Blocks[b].Holder != c.id {
			break
		}
		e := y.Edges[c.route.Edges[j-1]]
		if e.HasSwitch() {
			sw := st.Switches[e.Switch]
			if sw.Position != e.Position || !sw.Confirmed {
				break
			}
		}
		n++
	}
	return n, hi+n == len(c.route.Blocks)-1
}

// advance tries to get (more) movement authority and sets the speed accordingly.
func (c *coordinator) advance() {
	c.extend()
	n, toGoal := c.authority()
	for n == 0 && c.denied != layout.NoBlock && c.replans < c.g.conf.MaxReplans {
		c.replans++
		if !c.replan() {
			break
		}
		c.extend()
		n, toGoal = c.authority()
	}
	if n == 0 {
		c.noAuthority()
		return
	}
	c.brake.stop()
	c.step(outcomeGranted)
	want := c.conf.Caution
	if n >= 2 || toGoal {
		want = c.conf.Cruise
	}
	if c.maxSpeed > 0 && want > c.maxSpeed {
		want = c.maxSpeed
	}
	c.dir = c.g.track.Layout.Edges[c.route.Edges[c.headIdx()]].Direction
	c.setSpeed(want)
	if !c.stall.running() && c.g.Powered() {
		c.schedule(&c.stall, c.g.conf.StallTimeout, func(gen uint64) event { return evStall{gen} })
	}
}

func (c *coordinator) replan() bool {
	r, err := c.g.planner.Plan(c.id, c.head, c.goal, plan.Options{Avoid: []layout.BlockI{c.denied}})
	if err != nil {
		zap.S().Debugw("replan failed", "train", c.id, "avoid", c.denied, "err", err)
		return false
	}
	zap.S().Infow("replanned", "train", c.id, "avoid", c.denied, "route", r.String())
	for _, b := range c.g.track.Held(c.id) {
		if b == c.head || r.Index(b) >= 0 || c.g.track.Occupancy(b) == tal.OccupancyOccupied {
			continue
		}
		c.release(b)
	}
	c.route = r
	return true
}

func (c *coordinator) noAuthority() {
	switch c.state {
	case StatePlanning:
		c.step(outcomeDenied)
	case StateAdvancing:
		v := c.conf.Relation.Velocity(c.sent)
		c.step(outcomeDenied)
		c.setSpeed(shingo.SpeedStop)
		c.stall.stop()
		d := plan.BrakingTime(v, c.conf.Deceleration)
		if r := c.rampTime(); r > d {
			d = r
		}
		zap.S().Infow("braking", "train", c.id, "denied", c.denied, "velocity", v, "time", d)
		c.schedule(&c.brake, d, func(gen uint64) event { return evBrakeDone{gen} })
	}
}

func (c *coordinator) onOccupied(b layout.BlockI) {
	if tm, ok := c.debounce[b]; ok {
		tm.stop()
		delete(c.debounce, b)
	}
	if b == c.head || !c.ahead(b) {
		return
	}
	hi, bi := c.headIdx(), c.route.Index(b)
	// blocks passed without a sensor report still have to be given back
	for j := hi; j < bi; j++ {
		pb := c.route.Blocks[j]
		if c.g.track.Occupancy(pb) != tal.OccupancyOccupied {
			c.release(pb)
		}
	}
	c.head = b
	c.replans = 0
	c.stall.stop()
	zap.S().Infow("entered", "train", c.id, "block", c.blockName(b))
	if c.g.Powered() && !c.trail.running() {
		c.schedule(&c.trail, c.g.conf.StallTimeout, func(gen uint64) event { return evTrailCheck{gen} })
	}
	if b == c.goal {
		c.arrive()
		return
	}
	if c.state == StateBraking {
		c.extend()
		if n, _ := c.authority(); n == 0 {
			c.brake.stop()
			c.step(outcomeExhausted)
			return
		}
	}
	c.advance()
}

func (c *coordinator) onCleared(b layout.BlockI) {
	if b == c.head || c.ahead(b) {
		return
	}
	if c.g.conf.ClearDebounce > 0 {
		tm, ok := c.debounce[b]
		if !ok {
			tm = new(timer)
			c.debounce[b] = tm
		}
		c.schedule(tm, c.g.conf.ClearDebounce, func(gen uint64) event { return evDebounce{Block: b, gen: gen} })
		return
	}
	c.release(b)
}

func (c *coordinator) arrive() {
	c.stopTimers()
	c.setSpeed(shingo.SpeedStop)
	for _, b := range c.g.track.Held(c.id) {
		if b != c.head && c.g.track.Occupancy(b) != tal.OccupancyOccupied {
			c.release(b)
		}
	}
	c.step(outcomeArrived)
	c.route = plan.Route{}
	zap.S().Infow("arrived", "train", c.id, "block", c.blockName(c.head), "request", c.request)
}

// checkTrail fails the train if a block well behind it is still occupied.
func (c *coordinator) checkTrail() {
	hi := c.headIdx()
	for _, b := range c.g.track.Held(c.id) {
		bi := c.route.Index(b)
		if bi < 0 || bi >= hi-1 {
			continue
		}
		if c.g.track.Occupancy(b) == tal.OccupancyOccupied {
			c.fail(fmt.Errorf("%w: %s still occupies %s", tal.ErrStallTimeout, c.id, c.blockName(b)), outcomeStall)
			return
		}
	}
}

func (c *coordinator) onPower(on bool) {
	if !on {
		c.stall.stop()
		c.trail.stop()
		return
	}
	c.sendSpeed(c.sent)
	if c.state == StateAdvancing && c.speed.Moving() {
		c.schedule(&c.stall, c.g.conf.StallTimeout, func(gen uint64) event { return evStall{gen} })
	}
}

// fail puts the train in error and stops it for good. Its reservations stay, as its position is unknown.
func (c *coordinator) fail(err error, o outcome) {
	if !c.step(o) {
		return
	}
	c.err = err
	c.stopTimers()
	c.speed = shingo.SpeedEmergencyStop
	c.sendSpeed(c.speed)
	zap.S().Errorw("train failed", "train", c.id, "err", err)
	c.g.rec.Record(journal.Entry{
		Kind:    journal.KindFault,
		Train:   c.id,
		Block:   c.head,
		Detail:  err.Error(),
		Request: c.request,
	})
}

func (c *coordinator) park() error {
	if c.state == StateError {
		return fmt.Errorf("%w: %s", ErrInError, c.id)
	}
	c.stopTimers()
	c.setSpeed(shingo.SpeedStop)
	for _, b := range c.g.track.Held(c.id) {
		if b != c.head && c.g.track.Occupancy(b) != tal.OccupancyOccupied {
			c.release(b)
		}
	}
	c.route = plan.Route{}
	c.step(outcomePark)
	return nil
}

func (c *coordinator) reset(b layout.BlockI) error {
	if c.state != StateError {
		return fmt.Errorf("%w: %s is %s", ErrNotInError, c.id, c.state)
	}
	if holder, ok := c.g.track.Holder(b); ok && holder != c.id {
		return fmt.Errorf("reset %s to %s: %w", c.id, c.blockName(b), &tal.DeniedError{Block: b, Train: c.id, Reason: tal.AlreadyHeld, Holder: holder})
	}
	for _, hb := range c.g.track.Held(c.id) {
		if hb != b {
			c.release(hb)
		}
	}
	if err := c.g.track.Place(b, c.id); err != nil {
		return err
	}
	c.head = b
	c.route = plan.Route{}
	c.err = nil
	c.step(outcomeReset)
	c.speed = shingo.SpeedStop
	c.sendSpeed(c.speed)
	return nil
}

// cancel stops the train (unless it already is) and gives everything back.
func (c *coordinator) cancel() []layout.BlockI {
	c.stopTimers()
	if c.state != StateError && c.sent != shingo.SpeedStop {
		c.speed = shingo.SpeedStop
		c.sendSpeed(c.speed)
	}
	c.removed = true
	released := c.g.track.ReleaseAll(c.id)
	c.g.rec.Record(journal.Entry{
		Kind:    journal.KindTransition,
		Train:   c.id,
		Block:   c.head,
		Detail:  fmt.Sprintf("%s→removed", c.state),
		Request: c.request,
	})
	return released
}

func (c *coordinator) release(b layout.BlockI) {
	if c.g.track.Release(b, c.id) {
		c.g.wakeOthers(c.id)
	}
}

// setSpeed makes s the train's target speed, ramping towards it if the train has a ramp.
// An emergency stop is sent at once.
func (c *coordinator) setSpeed(s shingo.Speed) {
	if c.state == StateError || (s == c.speed && (c.sent == s || c.ramp.running())) {
		return
	}
	c.speed = s
	c.ramp.stop()
	if s == shingo.SpeedEmergencyStop || c.conf.RampStep <= 0 {
		c.sendSpeed(s)
		return
	}
	c.rampStep()
}

// rampStep sends the next step towards speed and schedules the one after, if any.
func (c *coordinator) rampStep() {
	cur := c.sent
	if cur < shingo.SpeedStop {
		cur = shingo.SpeedStop
	}
	next := c.speed
	switch {
	case next > cur+c.conf.RampStep:
		next = cur + c.conf.RampStep
	case next < cur-c.conf.RampStep:
		next = cur - c.conf.RampStep
	}
	c.sendSpeed(next)
	if next != c.speed {
		c.schedule(&c.ramp, c.conf.RampInterval, func(gen uint64) event { return evRamp{gen} })
	}
}

// rampTime is how long the ramp still needs to reach speed.
func (c *coordinator) rampTime() time.Duration {
	if c.conf.RampStep <= 0 || c.sent == c.speed {
		return 0
	}
	diff := c.speed - c.sent
	if diff < 0 {
		diff = -diff
	}
	n := (diff + c.conf.RampStep - 1) / c.conf.RampStep
	return time.Duration(n) * c.conf.RampInterval
}

func (c *coordinator) sendSpeed(s shingo.Speed) {
	c.sent = s
	c.g.send(conn.ReqSpeed{Train: c.id, Speed: s, Direction: c.dir}, c.id, c.request)
}

func (c *coordinator) schedule(tm *timer, d time.Duration, mk func(gen uint64) event) {
	tm.stop()
	gen := tm.gen
	tm.t = c.g.clock.AfterFunc(d, func() {
		c.post(mk(gen))
		c.g.kick()
	})
}

func (c *coordinator) stopTimers() {
	c.brake.stop()
	c.stall.stop()
	c.trail.stop()
	c.ramp.stop()
	for b, tm := range c.debounce {
		tm.stop()
		delete(c.debounce, b)
	}
}

func (c *coordinator) snapshot() TrainSnapshot {
	s := TrainSnapshot{
		Train:   c.id,
		Comment: c.conf.Comment,
		State:   c.state,
		Block:   c.head,
		Goal:    c.goal,
		Route:   append([]layout.BlockI(nil), c.route.Blocks...),
		Speed:   c.speed,
		Request: c.request,
	}
	if c.err != nil {
		s.Error = c.err.Error()
	}
	return s
}
