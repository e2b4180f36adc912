package layout

import (
	"fmt"

	"nyiyui.ca/hato/shingo/tal/layout/preset/kato"
)

// Presets maps preset names (as used in configuration) to constructors.
var Presets = map[string]func() (*Layout, error){
	"testbench1": InitTestbench1,
	"testbench2": InitTestbench2,
	"testbench3": InitTestbench3,
}

// InitTestbench1 is a loop of six blocks run in one direction, a signal in front of each.
func InitTestbench1() (*Layout, error) {
	d := Description{}
	const n = 6
	for i := 1; i <= n; i++ {
		d.Blocks = append(d.Blocks, Block{
			Comment: fmt.Sprint(i),
			Length:  kato.S248 + kato.R718_15*2,
		})
	}
	for i := 1; i <= n; i++ {
		next := i%n + 1
		d.Tracks = append(d.Tracks, Track{From: fmt.Sprint(i), To: fmt.Sprint(next)})
		d.Signals = append(d.Signals, SignalDesc{
			Comment:  fmt.Sprintf("s%d", next),
			Protects: fmt.Sprint(next),
			Approach: fmt.Sprint(i),
		})
	}
	return Build(d)
}

// InitTestbench2 is two lines (0-1-2 and 5-6) merging at switch m into block 3, which diverges at switch d into 4 and 8.
// 4 leads to the station 9, which loops back to 0; 8 leads to 7 which loops back to 5.
// Block comments are equal to their indices.
func InitTestbench2() (*Layout, error) {
	blocks := make([]Block, 10)
	for i := range blocks {
		blocks[i] = Block{Comment: fmt.Sprint(i), Length: kato.S248 * 2}
	}
	blocks[3].Length = kato.EP481_15S + kato.S62F + kato.EP481_15S
	blocks[9].Station = true
	blocks[9].Length = kato.S248 * 4
	return Build(Description{
		Blocks: blocks,
		Switches: []Switch{
			{Comment: "m"},
			{Comment: "d"},
		},
		Tracks: []Track{
			{From: "0", To: "1"},
			{From: "1", To: "2"},
			{From: "2", To: "3", Switch: "m", Position: PositionStraight},
			{From: "5", To: "6"},
			{From: "6", To: "3", Switch: "m", Position: PositionCurved},
			{From: "3", To: "4", Switch: "d", Position: PositionStraight},
			{From: "3", To: "8", Switch: "d", Position: PositionCurved},
			{From: "4", To: "9"},
			{From: "8", To: "7"},
			{From: "9", To: "0"},
			{From: "7", To: "5"},
		},
		Signals: []SignalDesc{
			{Comment: "3a", Protects: "3", Approach: "2"},
			{Comment: "3b", Protects: "3", Approach: "6"},
			{Comment: "4", Protects: "4", Approach: "3"},
			{Comment: "8", Protects: "8", Approach: "3"},
			{Comment: "9", Protects: "9", Approach: "4"},
		},
	})
}

// InitTestbench3 is a loop with a passing siding: from a, switch w leads to either b1 or b2, which merge at switch e into c.
// c-d-a closes the loop. The d-a track can be run both ways.
func InitTestbench3() (*Layout, error) {
	return Build(Description{
		Blocks: []Block{
			{Comment: "a", Length: kato.S248},
			{Comment: "b1", Length: kato.S248 * 3},
			{Comment: "b2", Length: kato.R481_15 * 2, Station: true},
			{Comment: "c", Length: kato.S248},
			{Comment: "d", Length: kato.S248 * 2},
		},
		Switches: []Switch{
			{Comment: "w"},
			{Comment: "e"},
		},
		Tracks: []Track{
			{From: "a", To: "b1", Switch: "w", Position: PositionStraight},
			{From: "a", To: "b2", Switch: "w", Position: PositionCurved},
			{From: "b1", To: "c", Switch: "e", Position: PositionStraight},
			{From: "b2", To: "c", Switch: "e", Position: PositionCurved},
			{From: "c", To: "d"},
			{From: "d", To: "a", Both: true},
		},
		Signals: []SignalDesc{
			{Comment: "b1", Protects: "b1", Approach: "a"},
			{Comment: "b2", Protects: "b2", Approach: "a"},
			{Comment: "c1", Protects: "c", Approach: "b1"},
			{Comment: "c2", Protects: "c", Approach: "b2"},
		},
	})
}
