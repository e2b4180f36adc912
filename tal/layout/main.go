package layout

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// BlockI is the index of a Block in a Layout.
type BlockI int

// SwitchI is the index of a Switch in a Layout.
type SwitchI int

// SignalI is the index of a Signal in a Layout.
type SignalI int

// EdgeI is the index of an Edge in a Layout.
type EdgeI int

const (
	NoBlock  BlockI  = -1
	NoSwitch SwitchI = -1
)

// Position is a switch position. Most switches only have PositionStraight and PositionCurved; three-way switches have more.
type Position int

const (
	PositionStraight Position = 0
	PositionCurved   Position = 1
)

func (p Position) String() string {
	switch p {
	case PositionStraight:
		return "straight"
	case PositionCurved:
		return "curved"
	default:
		return fmt.Sprintf("pos%d", int(p))
	}
}

// Direction is the direction a locomotive has to run to traverse an edge.
type Direction bool

const (
	DirectionForward Direction = true
	DirectionReverse Direction = false
)

func (d Direction) String() string {
	if d {
		return "fwd"
	}
	return "rev"
}

// Layout is the static topology of a railroad.
// Everything is addressed by index, and nothing here changes after Build.
type Layout struct {
	Blocks   []Block
	Switches []Switch
	Signals  []Signal
	Edges    []Edge

	// out[b] has the indices of edges leaving b, in ascending order.
	out [][]EdgeI
	// in[b] has the indices of edges entering b, in ascending order.
	in [][]EdgeI
	// enabled[s][p] has the indices of edges switch s enables in position p.
	enabled [][][]EdgeI
}

type Block struct {
	// Comment is a human-readable name (and the lookup key).
	Comment string
	// Length in µm.
	Length int64
	// Station blocks are avoided by the planner unless they are the goal.
	Station bool
}

type Switch struct {
	Comment string
	// Positions is the number of discrete positions. Always at least 2.
	Positions int
}

type Signal struct {
	Comment string
	// Protects is the block this signal admits trains into.
	Protects BlockI
	// Approach is the block trains wait in in front of this signal, or NoBlock.
	Approach BlockI
}

// Edge is a traversable connection from one block to another.
type Edge struct {
	From BlockI
	To   BlockI
	// Switch is NoSwitch if no switch has to be set to traverse this edge.
	Switch   SwitchI
	Position Position
	// Direction is the direction the locomotive runs while traversing this edge.
	Direction Direction
}

func (e Edge) HasSwitch() bool { return e.Switch != NoSwitch }

func (e Edge) String() string {
	if e.Switch == NoSwitch {
		return fmt.Sprintf("%d→%d", e.From, e.To)
	}
	return fmt.Sprintf("%d→%d(s%d:%s)", e.From, e.To, e.Switch, e.Position)
}

// Arc is a neighbour of a block.
type Arc struct {
	Edge EdgeI
	To   BlockI
	// Switch and Position are the required switch position (Switch is NoSwitch if none).
	Switch   SwitchI
	Position Position
}

// Neighbors returns all edges leaving b, in ascending edge order.
func (y *Layout) Neighbors(b BlockI) []Arc {
	y.checkBlock(b)
	res := make([]Arc, 0, len(y.out[b]))
	for _, ei := range y.out[b] {
		e := y.Edges[ei]
		res = append(res, Arc{Edge: ei, To: e.To, Switch: e.Switch, Position: e.Position})
	}
	return res
}

// Predecessors returns the indices of edges entering b.
func (y *Layout) Predecessors(b BlockI) []EdgeI {
	y.checkBlock(b)
	return y.in[b]
}

// Adjacent reports whether a and b are connected by an edge in either direction.
func (y *Layout) Adjacent(a, b BlockI) bool {
	for _, ei := range y.out[a] {
		if y.Edges[ei].To == b {
			return true
		}
	}
	for _, ei := range y.in[a] {
		if y.Edges[ei].From == b {
			return true
		}
	}
	return false
}

// EnabledEdges returns the edges switch s enables in position p.
func (y *Layout) EnabledEdges(s SwitchI, p Position) []EdgeI {
	y.checkSwitch(s)
	if p < 0 || int(p) >= len(y.enabled[s]) {
		return nil
	}
	return y.enabled[s][p]
}

// EnabledBlocks returns the blocks joined by the edges switch s enables in position p, in ascending order without duplicates.
func (y *Layout) EnabledBlocks(s SwitchI, p Position) []BlockI {
	seen := map[BlockI]bool{}
	res := []BlockI{}
	for _, ei := range y.EnabledEdges(s, p) {
		e := y.Edges[ei]
		for _, b := range []BlockI{e.From, e.To} {
			if !seen[b] {
				seen[b] = true
				res = append(res, b)
			}
		}
	}
	slices.Sort(res)
	return res
}

// EdgeBetween returns the lowest-indexed edge from a to b.
func (y *Layout) EdgeBetween(a, b BlockI) (EdgeI, bool) {
	y.checkBlock(a)
	for _, ei := range y.out[a] {
		if y.Edges[ei].To == b {
			return ei, true
		}
	}
	return 0, false
}

func (y *Layout) ValidBlock(b BlockI) bool { return b >= 0 && int(b) < len(y.Blocks) }

// checkBlock panics if b doesn't exist in this Layout.
func (y *Layout) checkBlock(b BlockI) {
	if !y.ValidBlock(b) {
		panic(fmt.Sprintf("invalid BlockI %d", b))
	}
}

func (y *Layout) checkSwitch(s SwitchI) {
	if s < 0 || int(s) >= len(y.Switches) {
		panic(fmt.Sprintf("invalid SwitchI %d", s))
	}
}

// LookupBlock finds a block with a matching comment.
func (y *Layout) LookupBlock(comment string) (BlockI, bool) {
	for bi, b := range y.Blocks {
		if b.Comment == comment {
			return BlockI(bi), true
		}
	}
	return NoBlock, false
}

// MustLookup finds a block with a matching comment. If it doesn't it panics.
// This is for debugging/testing.
func (y *Layout) MustLookup(comment string) BlockI {
	bi, ok := y.LookupBlock(comment)
	if !ok {
		panic(fmt.Sprintf("found nothing when looking up for %s", comment))
	}
	return bi
}

func (y *Layout) LookupSwitch(comment string) (SwitchI, bool) {
	for si, s := range y.Switches {
		if s.Comment == comment {
			return SwitchI(si), true
		}
	}
	return NoSwitch, false
}

func (y *Layout) LookupSignal(comment string) (SignalI, bool) {
	for si, s := range y.Signals {
		if s.Comment == comment {
			return SignalI(si), true
		}
	}
	return -1, false
}

// MustLookupSwitch is MustLookup for switches.
func (y *Layout) MustLookupSwitch(comment string) SwitchI {
	si, ok := y.LookupSwitch(comment)
	if !ok {
		panic(fmt.Sprintf("found no switch when looking up for %s", comment))
	}
	return si
}

// MustLookupSignal is MustLookup for signals.
func (y *Layout) MustLookupSignal(comment string) SignalI {
	si, ok := y.LookupSignal(comment)
	if !ok {
		panic(fmt.Sprintf("found no signal when looking up for %s", comment))
	}
	return si
}
