// Package interlock turns switch and signal decisions into commands.
// Every switch move goes through the interlock in tal.Track first; nothing is sent for a move it refused.
package interlock

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/journal"
	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/layout"
)

type Controller struct {
	track *tal.Track
	cmd   conn.Commander
	rec   journal.Recorder

	lock sync.Mutex
	// aspects is what was last sent for each signal; nil until the first Refresh.
	aspects []layout.Aspect
}

func New(t *tal.Track, cmd conn.Commander, rec journal.Recorder) *Controller {
	if rec == nil {
		rec = journal.Discard
	}
	return &Controller{track: t, cmd: cmd, rec: rec}
}

// AlignFor sets every switch the edges need on behalf of train, or none of them.
// Commands are only sent for switches whose position actually changed.
func (c *Controller) AlignFor(edges []layout.EdgeI, train shingo.TrainID) error {
	y := c.track.Layout
	want := map[layout.SwitchI]layout.Position{}
	reqs := []tal.SwitchRequest{}
	for _, ei := range edges {
		e := y.Edges[ei]
		if !e.HasSwitch() {
			continue
		}
		if p, ok := want[e.Switch]; ok {
			if p != e.Position {
				return fmt.Errorf("edges need switch %d in both %s and %s", e.Switch, p, e.Position)
			}
			continue
		}
		want[e.Switch] = e.Position
		reqs = append(reqs, tal.SwitchRequest{Switch: e.Switch, Position: e.Position})
	}
	if len(reqs) == 0 {
		return nil
	}
	changes, err := c.track.SetSwitchPositions(reqs, train)
	if err != nil {
		zap.S().Debugw("align refused", "train", train, "edges", edges, "err", err)
		return err
	}
	for _, ch := range changes {
		c.send(conn.ReqSwitch{Switch: ch.Switch, Position: ch.Position}, train)
	}
	return nil
}

// Set moves a switch on behalf of nobody in particular (e.g. an operator).
func (c *Controller) Set(s layout.SwitchI, p layout.Position) error {
	changed, err := c.track.SetSwitchPosition(s, p, shingo.NoTrain)
	if err != nil {
		return err
	}
	if changed {
		c.send(conn.ReqSwitch{Switch: s, Position: p}, shingo.NoTrain)
	}
	return nil
}

// Feedback records a switch's reported position, resending the commanded position if they disagree.
func (c *Controller) Feedback(s layout.SwitchI, actual layout.Position) {
	if c.track.SwitchFeedback(s, actual) {
		c.Resend(s)
	}
}

// Resend sends the commanded position of s again.
func (c *Controller) Resend(s layout.SwitchI) {
	c.send(conn.ReqSwitch{Switch: s, Position: c.track.SwitchPosition(s)}, shingo.NoTrain)
}

// Refresh recomputes every signal's aspect and sends the ones that changed since the last Refresh.
func (c *Controller) Refresh() {
	c.lock.Lock()
	defer c.lock.Unlock()
	aspects := c.track.Aspects()
	for i, a := range aspects {
		if c.aspects != nil && c.aspects[i] == a {
			continue
		}
		c.send(conn.ReqSignal{Signal: layout.SignalI(i), Aspect: a}, shingo.NoTrain)
	}
	c.aspects = aspects
}

// Aspects returns what was last sent for each signal.
func (c *Controller) Aspects() []layout.Aspect {
	c.lock.Lock()
	defer c.lock.Unlock()
	res := make([]layout.Aspect, len(c.aspects))
	copy(res, c.aspects)
	return res
}

func (c *Controller) send(r conn.Req, train shingo.TrainID) {
	c.rec.Record(journal.Entry{Kind: journal.KindCommand, Train: train, Block: layout.NoBlock, Detail: r.String()})
	if err := c.cmd.Send(r); err != nil {
		zap.S().Warnw("send failed", "req", r, "err", err)
	}
}
