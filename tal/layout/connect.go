package layout

import (
	"errors"
	"fmt"
)

// Description is a layout as supplied by a loader. Everything refers to blocks, switches and signals by comment.
type Description struct {
	Blocks   []Block
	Switches []Switch
	Signals  []SignalDesc
	Tracks   []Track
}

type SignalDesc struct {
	Comment  string
	Protects string
	// Approach may be empty.
	Approach string
}

// Track connects two blocks.
type Track struct {
	From string
	To   string
	// Switch may be empty.
	Switch   string
	Position Position
	// Both also adds To→From, run in reverse.
	Both bool
}

// Build checks d and turns it into a Layout.
func Build(d Description) (*Layout, error) {
	y := &Layout{
		Blocks:   make([]Block, len(d.Blocks)),
		Switches: make([]Switch, len(d.Switches)),
	}
	var errs []error
	blocks := map[string]BlockI{}
	for i, b := range d.Blocks {
		if b.Comment == "" {
			errs = append(errs, fmt.Errorf("block %d: empty comment", i))
		} else if _, ok := blocks[b.Comment]; ok {
			errs = append(errs, fmt.Errorf("block %d: duplicate comment %s", i, b.Comment))
		}
		if b.Length < 0 {
			errs = append(errs, fmt.Errorf("block %s: negative length", b.Comment))
		}
		blocks[b.Comment] = BlockI(i)
		y.Blocks[i] = b
	}
	switches := map[string]SwitchI{}
	for i, s := range d.Switches {
		if s.Positions == 0 {
			s.Positions = 2
		}
		if s.Positions < 2 {
			errs = append(errs, fmt.Errorf("switch %s: %d positions", s.Comment, s.Positions))
		}
		if _, ok := switches[s.Comment]; ok {
			errs = append(errs, fmt.Errorf("switch %d: duplicate comment %s", i, s.Comment))
		}
		switches[s.Comment] = SwitchI(i)
		y.Switches[i] = s
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for i, t := range d.Tracks {
		from, okF := blocks[t.From]
		to, okT := blocks[t.To]
		if !okF || !okT {
			errs = append(errs, fmt.Errorf("track %d (%s→%s): unknown block", i, t.From, t.To))
			continue
		}
		if from == to {
			errs = append(errs, fmt.Errorf("track %d: %s connects to itself", i, t.From))
			continue
		}
		si := NoSwitch
		if t.Switch != "" {
			var ok bool
			si, ok = switches[t.Switch]
			if !ok {
				errs = append(errs, fmt.Errorf("track %d: unknown switch %s", i, t.Switch))
				continue
			}
			if t.Position < 0 || int(t.Position) >= y.Switches[si].Positions {
				errs = append(errs, fmt.Errorf("track %d: switch %s has no position %s", i, t.Switch, t.Position))
				continue
			}
		}
		y.Edges = append(y.Edges, Edge{From: from, To: to, Switch: si, Position: t.Position, Direction: DirectionForward})
		if t.Both {
			y.Edges = append(y.Edges, Edge{From: to, To: from, Switch: si, Position: t.Position, Direction: DirectionReverse})
		}
	}
	y.index()

	for si, s := range y.Switches {
		for p := 0; p < s.Positions; p++ {
			if len(y.enabled[si][p]) == 0 {
				errs = append(errs, fmt.Errorf("switch %s: position %s enables no track", s.Comment, Position(p)))
			}
		}
	}

	for i, sd := range d.Signals {
		protects, ok := blocks[sd.Protects]
		if !ok {
			errs = append(errs, fmt.Errorf("signal %d (%s): unknown protected block %s", i, sd.Comment, sd.Protects))
			continue
		}
		approach := NoBlock
		if sd.Approach != "" {
			approach, ok = blocks[sd.Approach]
			if !ok {
				errs = append(errs, fmt.Errorf("signal %s: unknown approach block %s", sd.Comment, sd.Approach))
				continue
			}
			if _, ok := y.EdgeBetween(approach, protects); !ok {
				errs = append(errs, fmt.Errorf("signal %s: no track from %s to %s", sd.Comment, sd.Approach, sd.Protects))
				continue
			}
		}
		y.Signals = append(y.Signals, Signal{Comment: sd.Comment, Protects: protects, Approach: approach})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return y, nil
}

// MustBuild is Build but panics on error.
func MustBuild(d Description) *Layout {
	y, err := Build(d)
	if err != nil {
		panic(fmt.Sprintf("build layout: %s", err))
	}
	return y
}

func (y *Layout) index() {
	y.out = make([][]EdgeI, len(y.Blocks))
	y.in = make([][]EdgeI, len(y.Blocks))
	y.enabled = make([][][]EdgeI, len(y.Switches))
	for si, s := range y.Switches {
		y.enabled[si] = make([][]EdgeI, s.Positions)
	}
	for i, e := range y.Edges {
		ei := EdgeI(i)
		y.out[e.From] = append(y.out[e.From], ei)
		y.in[e.To] = append(y.in[e.To], ei)
		if e.Switch != NoSwitch {
			y.enabled[e.Switch][e.Position] = append(y.enabled[e.Switch][e.Position], ei)
		}
	}
}
