package layout

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPresets(t *testing.T) {
	for name, init := range Presets {
		t.Run(name, func(t *testing.T) {
			y, err := init()
			if err != nil {
				t.Fatalf("init: %s", err)
			}
			if len(y.Blocks) == 0 {
				t.Fatalf("no blocks")
			}
		})
	}
}

func TestNeighbors(t *testing.T) {
	y, err := InitTestbench2()
	if err != nil {
		t.Fatalf("InitTestbench2: %s", err)
	}
	m := y.MustLookupSwitch("m")
	d := y.MustLookupSwitch("d")
	type setup struct {
		from BlockI
		want []Arc
	}
	setups := []setup{
		{y.MustLookup("1"), []Arc{{Edge: 1, To: 2, Switch: NoSwitch}}},
		{y.MustLookup("2"), []Arc{{Edge: 2, To: 3, Switch: m, Position: PositionStraight}}},
		{y.MustLookup("6"), []Arc{{Edge: 4, To: 3, Switch: m, Position: PositionCurved}}},
		{y.MustLookup("3"), []Arc{
			{Edge: 5, To: 4, Switch: d, Position: PositionStraight},
			{Edge: 6, To: 8, Switch: d, Position: PositionCurved},
		}},
	}
	for _, s := range setups {
		t.Run(fmt.Sprint(s.from), func(t *testing.T) {
			got := y.Neighbors(s.from)
			if !cmp.Equal(s.want, got) {
				t.Fatalf("diff: %s", cmp.Diff(s.want, got))
			}
		})
	}
}

func TestEnabledBlocks(t *testing.T) {
	y, err := InitTestbench2()
	if err != nil {
		t.Fatalf("InitTestbench2: %s", err)
	}
	m := y.MustLookupSwitch("m")
	d := y.MustLookupSwitch("d")
	check := func(s SwitchI, p Position, want []BlockI) {
		got := y.EnabledBlocks(s, p)
		if !cmp.Equal(want, got) {
			t.Errorf("switch %d %s: %s", s, p, cmp.Diff(want, got))
		}
	}
	check(m, PositionStraight, []BlockI{2, 3})
	check(m, PositionCurved, []BlockI{3, 6})
	check(d, PositionStraight, []BlockI{3, 4})
	check(d, PositionCurved, []BlockI{3, 8})
	if got := y.EnabledEdges(m, Position(5)); got != nil {
		t.Errorf("nonexistent position: got %v", got)
	}
}

func TestBothWays(t *testing.T) {
	y, err := InitTestbench3()
	if err != nil {
		t.Fatalf("InitTestbench3: %s", err)
	}
	a := y.MustLookup("a")
	dd := y.MustLookup("d")
	ei, ok := y.EdgeBetween(a, dd)
	if !ok {
		t.Fatalf("no edge a→d")
	}
	if y.Edges[ei].Direction != DirectionReverse {
		t.Fatalf("a→d should run in reverse")
	}
	if !y.Adjacent(a, dd) || !y.Adjacent(dd, a) {
		t.Fatalf("a and d should be adjacent")
	}
	if y.Adjacent(a, y.MustLookup("c")) {
		t.Fatalf("a and c should not be adjacent")
	}
}

func TestBuildErrors(t *testing.T) {
	blocks := []Block{{Comment: "x"}, {Comment: "y"}}
	setups := []struct {
		name string
		d    Description
	}{
		{"unknown block", Description{Blocks: blocks, Tracks: []Track{{From: "x", To: "z"}}}},
		{"self", Description{Blocks: blocks, Tracks: []Track{{From: "x", To: "x"}}}},
		{"duplicate", Description{Blocks: append(blocks, Block{Comment: "x"})}},
		{"unknown switch", Description{Blocks: blocks, Tracks: []Track{{From: "x", To: "y", Switch: "s"}}}},
		{"unused position", Description{
			Blocks:   blocks,
			Switches: []Switch{{Comment: "s"}},
			Tracks:   []Track{{From: "x", To: "y", Switch: "s", Position: PositionStraight}},
		}},
		{"signal without track", Description{
			Blocks:  blocks,
			Signals: []SignalDesc{{Comment: "s", Protects: "y", Approach: "x"}},
		}},
	}
	for _, s := range setups {
		t.Run(s.name, func(t *testing.T) {
			_, err := Build(s.d)
			if err == nil {
				t.Fatalf("expected error")
			}
			t.Logf("err: %s", err)
		})
	}
}
