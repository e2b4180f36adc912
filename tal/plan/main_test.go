package plan

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/layout"
)

func newTrack(t *testing.T, init func() (*layout.Layout, error)) *tal.Track {
	y, err := init()
	if err != nil {
		t.Fatalf("init layout: %s", err)
	}
	tr := tal.New(y, nil)
	for bi := range y.Blocks {
		tr.SetOccupancy(layout.BlockI(bi), tal.OccupancyClear)
	}
	return tr
}

func TestPlan(t *testing.T) {
	tr := newTrack(t, layout.InitTestbench2)
	p := New(tr, MetricHops)
	type setup struct {
		from, goal layout.BlockI
		want       Route
	}
	setups := []setup{
		{1, 4, Route{Train: 1, Blocks: []layout.BlockI{1, 2, 3, 4}, Edges: []layout.EdgeI{1, 2, 5}, Cost: 3}},
		{5, 8, Route{Train: 1, Blocks: []layout.BlockI{5, 6, 3, 8}, Edges: []layout.EdgeI{3, 4, 6}, Cost: 3}},
		{4, 4, Route{Train: 1, Blocks: []layout.BlockI{4}, Edges: []layout.EdgeI{}, Cost: 0}},
		// through the station 9, which is only penalised when it isn't the goal
		{4, 1, Route{Train: 1, Blocks: []layout.BlockI{4, 9, 0, 1}, Edges: []layout.EdgeI{7, 9, 0}, Cost: 203}},
		{4, 9, Route{Train: 1, Blocks: []layout.BlockI{4, 9}, Edges: []layout.EdgeI{7}, Cost: 1}},
	}
	for _, s := range setups {
		t.Run(fmt.Sprintf("%d→%d", s.from, s.goal), func(t *testing.T) {
			got, err := p.Plan(1, s.from, s.goal, Options{})
			if err != nil {
				t.Fatalf("Plan: %s", err)
			}
			if !cmp.Equal(s.want, got) {
				t.Fatalf("diff: %s", cmp.Diff(s.want, got))
			}
		})
	}
}

func TestPlanDeterministic(t *testing.T) {
	tr := newTrack(t, layout.InitTestbench1)
	p := New(tr, MetricLength)
	first, err := p.Plan(1, 0, 4, Options{})
	if err != nil {
		t.Fatalf("Plan: %s", err)
	}
	for i := 0; i < 50; i++ {
		got, err := p.Plan(1, 0, 4, Options{})
		if err != nil {
			t.Fatalf("Plan %d: %s", i, err)
		}
		if !cmp.Equal(first, got) {
			t.Fatalf("Plan %d: %s", i, cmp.Diff(first, got))
		}
	}
}

func TestPlanTieBreak(t *testing.T) {
	y := layout.MustBuild(layout.Description{
		Blocks:   []layout.Block{{Comment: "x"}, {Comment: "q"}, {Comment: "p"}, {Comment: "z"}},
		Switches: []layout.Switch{{Comment: "s"}},
		Tracks: []layout.Track{
			{From: "x", To: "p", Switch: "s", Position: layout.PositionStraight},
			{From: "x", To: "q", Switch: "s", Position: layout.PositionCurved},
			{From: "p", To: "z"},
			{From: "q", To: "z"},
		},
	})
	p := New(tal.New(y, nil), MetricHops)
	got, err := p.Plan(1, y.MustLookup("x"), y.MustLookup("z"), Options{})
	if err != nil {
		t.Fatalf("Plan: %s", err)
	}
	want := []layout.BlockI{y.MustLookup("x"), y.MustLookup("q"), y.MustLookup("z")}
	if !cmp.Equal(want, got.Blocks) {
		t.Fatalf("diff: %s", cmp.Diff(want, got.Blocks))
	}
}

func TestPlanPenalties(t *testing.T) {
	y := layout.MustBuild(layout.Description{
		Blocks: []layout.Block{
			{Comment: "x"},
			{Comment: "p"},
			{Comment: "p2"},
			{Comment: "q", Station: true},
			{Comment: "z"},
		},
		Switches: []layout.Switch{{Comment: "s"}},
		Tracks: []layout.Track{
			{From: "x", To: "p", Switch: "s", Position: layout.PositionStraight},
			{From: "x", To: "q", Switch: "s", Position: layout.PositionCurved},
			{From: "p", To: "p2"},
			{From: "p2", To: "z"},
			{From: "q", To: "z"},
		},
	})
	tr := tal.New(y, nil)
	for bi := range y.Blocks {
		tr.SetOccupancy(layout.BlockI(bi), tal.OccupancyClear)
	}
	x, pp, p2, q, z := y.MustLookup("x"), y.MustLookup("p"), y.MustLookup("p2"), y.MustLookup("q"), y.MustLookup("z")
	p := New(tr, MetricHops)
	route := func() []layout.BlockI {
		r, err := p.Plan(1, x, z, Options{})
		if err != nil {
			t.Fatalf("Plan: %s", err)
		}
		return r.Blocks
	}
	if got := route(); !cmp.Equal([]layout.BlockI{x, pp, p2, z}, got) {
		t.Fatalf("free: %v", got)
	}
	// p2 stays cheaper than the station q while another train stands in it
	tr.SetOccupancy(p2, tal.OccupancyOccupied)
	if got := route(); !cmp.Equal([]layout.BlockI{x, pp, p2, z}, got) {
		t.Fatalf("p2 occupied: %v", got)
	}
	p.StationPenalty = 50
	if got := route(); !cmp.Equal([]layout.BlockI{x, q, z}, got) {
		t.Fatalf("p2 occupied, cheap station: %v", got)
	}
	tr.SetOccupancy(p2, tal.OccupancyClear)
	tr.Place(p2, 2)
	if got := route(); !cmp.Equal([]layout.BlockI{x, q, z}, got) {
		t.Fatalf("p2 held, cheap station: %v", got)
	}
}

func TestPlanAvoid(t *testing.T) {
	tr := newTrack(t, layout.InitTestbench3)
	y := tr.Layout
	a, b1, b2, c := y.MustLookup("a"), y.MustLookup("b1"), y.MustLookup("b2"), y.MustLookup("c")
	p := New(tr, MetricHops)
	r, err := p.Plan(1, a, c, Options{})
	if err != nil {
		t.Fatalf("Plan: %s", err)
	}
	if !cmp.Equal([]layout.BlockI{a, b1, c}, r.Blocks) {
		t.Fatalf("free: %v", r.Blocks)
	}
	r, err = p.Plan(1, a, c, Options{Avoid: []layout.BlockI{b1}})
	if err != nil {
		t.Fatalf("Plan avoiding b1: %s", err)
	}
	if !cmp.Equal([]layout.BlockI{a, b2, c}, r.Blocks) {
		t.Fatalf("avoid b1: %v", r.Blocks)
	}
	if _, err := p.Plan(1, a, c, Options{Avoid: []layout.BlockI{b1, b2}}); !errors.Is(err, tal.ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
	if _, err := p.Plan(1, a, c, Options{Avoid: []layout.BlockI{c}}); !errors.Is(err, tal.ErrNoPath) {
		t.Fatalf("expected ErrNoPath for avoided goal, got %v", err)
	}
}

func TestPlanSwitchNotSettable(t *testing.T) {
	tr := newTrack(t, layout.InitTestbench2)
	const other shingo.TrainID = 9
	// other is running 2→3 with m straight
	tr.Place(2, other)
	tr.TryReserve(3, other)
	p := New(tr, MetricHops)
	_, err := p.Plan(1, 6, 4, Options{})
	if !errors.Is(err, tal.ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
	// other itself may set it
	if _, err := p.Plan(other, 6, 4, Options{}); err != nil {
		t.Fatalf("Plan for holder: %s", err)
	}
}

func TestRelation(t *testing.T) {
	lin := Linear(1000)
	if got := lin.Velocity(shingo.Drive(10)); got != 10000 {
		t.Fatalf("linear: %d", got)
	}
	if got := lin.Velocity(shingo.SpeedEmergencyStop); got != 0 {
		t.Fatalf("estop: %d", got)
	}
	// v = 10x² + 500x
	fit := Fit([]Point{{10, 6000}, {20, 14000}, {30, 24000}, {40, 36000}}, lin)
	if got := fit.Velocity(shingo.Drive(25)); got < 18740 || got > 18760 {
		t.Fatalf("fit: %d (coeffs %v)", got, fit.Coeffs)
	}
	if x, ok := fit.SolveForX(24000); !ok || x < 29.9 || x > 30.1 {
		t.Fatalf("SolveForX: %f %t", x, ok)
	}
	if got := Fit(nil, lin); !cmp.Equal(lin, got) {
		t.Fatalf("fallback: %v", got)
	}
}

func TestBraking(t *testing.T) {
	if got := BrakingDistance(100000, 50000); got != 100000 {
		t.Fatalf("BrakingDistance: %d", got)
	}
	if got := BrakingTime(100000, 50000); got != 2*time.Second {
		t.Fatalf("BrakingTime: %s", got)
	}
	if got := BrakingTime(0, 50000); got != 0 {
		t.Fatalf("BrakingTime stopped: %s", got)
	}
}
