// Package plan finds routes through a layout and estimates braking.
package plan

import (
	"container/heap"
	"fmt"
	"math"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/layout"
)

type Metric int

const (
	// MetricHops counts blocks entered.
	MetricHops Metric = iota
	// MetricLength sums the length (mm) of blocks entered.
	MetricLength
)

func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "hops":
		return MetricHops, nil
	case "length":
		return MetricLength, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

const (
	DefaultStationPenalty = 200
	DefaultTrainPenalty   = 100
)

// Route is a path from Blocks[0] (where the train is) to the last block (the goal).
// Edges[i] leads from Blocks[i] to Blocks[i+1].
type Route struct {
	Train  shingo.TrainID  `json:"train"`
	Blocks []layout.BlockI `json:"blocks"`
	Edges  []layout.EdgeI  `json:"edges"`
	Cost   int64           `json:"cost"`
}

func (r Route) Goal() layout.BlockI { return r.Blocks[len(r.Blocks)-1] }

// Index returns the position of b in the route, or -1.
func (r Route) Index(b layout.BlockI) int { return slices.Index(r.Blocks, b) }

func (r Route) String() string {
	return fmt.Sprintf("route(%s %v cost%d)", r.Train, r.Blocks, r.Cost)
}

type Planner struct {
	Track  *tal.Track
	Metric Metric
	// StationPenalty is added for entering a station block that isn't the goal.
	StationPenalty int64
	// TrainPenalty is added for entering a block held by another train, or occupied and not held by this one.
	TrainPenalty int64
}

func New(t *tal.Track, m Metric) *Planner {
	return &Planner{
		Track:          t,
		Metric:         m,
		StationPenalty: DefaultStationPenalty,
		TrainPenalty:   DefaultTrainPenalty,
	}
}

type Options struct {
	// Avoid lists blocks the route must not enter.
	Avoid []layout.BlockI
}

// Plan finds the cheapest route for train from from to goal.
// Only edges whose switch is already set or could be set by train right now are used.
// Among equally cheap routes, lower block indices win.
// It returns an error wrapping tal.ErrNoPath if there is no route.
func (p *Planner) Plan(train shingo.TrainID, from, goal layout.BlockI, opts Options) (Route, error) {
	y := p.Track.Layout
	if !y.ValidBlock(from) || !y.ValidBlock(goal) {
		return Route{}, fmt.Errorf("plan %d→%d: invalid block", from, goal)
	}
	if slices.Contains(opts.Avoid, goal) {
		return Route{}, fmt.Errorf("plan %d→%d: goal avoided: %w", from, goal, tal.ErrNoPath)
	}
	st := p.Track.State()

	const unvisited = math.MaxInt64
	dist := make([]int64, len(y.Blocks))
	prev := make([]layout.EdgeI, len(y.Blocks))
	done := make([]bool, len(y.Blocks))
	for i := range dist {
		dist[i] = unvisited
		prev[i] = -1
	}
	dist[from] = 0
	q := &queue{{block: from, cost: 0}}
	for q.Len() > 0 {
		it := heap.Pop(q).(*item)
		if done[it.block] {
			continue
		}
		done[it.block] = true
		if it.block == goal {
			break
		}
		for _, arc := range y.Neighbors(it.block) {
			if done[arc.To] || slices.Contains(opts.Avoid, arc.To) {
				continue
			}
			if arc.Switch != layout.NoSwitch && st.CanSetSwitch(y, arc.Switch, arc.Position, train) != nil {
				continue
			}
			cost := it.cost + p.cost(st, train, arc.To, goal)
			better := cost < dist[arc.To]
			if cost == dist[arc.To] && it.block < y.Edges[prev[arc.To]].From {
				better = true
			}
			if better {
				dist[arc.To] = cost
				prev[arc.To] = arc.Edge
				heap.Push(q, &item{block: arc.To, cost: cost})
			}
		}
	}
	if !done[goal] {
		return Route{}, fmt.Errorf("plan %d→%d: %w", from, goal, tal.ErrNoPath)
	}
	r := Route{Train: train, Blocks: []layout.BlockI{goal}, Edges: []layout.EdgeI{}, Cost: dist[goal]}
	for b := goal; b != from; {
		ei := prev[b]
		r.Edges = append(r.Edges, ei)
		b = y.Edges[ei].From
		r.Blocks = append(r.Blocks, b)
	}
	reverse(r.Blocks)
	reverse(r.Edges)
	return r, nil
}

func (p *Planner) cost(st tal.State, train shingo.TrainID, b, goal layout.BlockI) int64 {
	block := p.Track.Layout.Blocks[b]
	var c int64 = 1
	if p.Metric == MetricLength {
		c = block.Length / 1000
		if c < 1 {
			c = 1
		}
	}
	if b == goal {
		return c
	}
	if block.Station {
		c += p.StationPenalty
	}
	bs := st.Blocks[b]
	if (bs.Holder != shingo.NoTrain && bs.Holder != train) || (bs.Occupancy == tal.OccupancyOccupied && bs.Holder != train) {
		c += p.TrainPenalty
	}
	return c
}

func reverse[S ~[]E, E any](s S) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
