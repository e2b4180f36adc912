package tal

import (
	"nyiyui.ca/hato/shingo/tal/layout"
)

// Snapshot is a Track's state with names attached, for display.
type Snapshot struct {
	Blocks       []BlockSnapshot  `json:"blocks"`
	Switches     []SwitchSnapshot `json:"switches"`
	Signals      []SignalSnapshot `json:"signals"`
	Reservations []Reservation    `json:"reservations"`
}

type BlockSnapshot struct {
	Comment string `json:"comment"`
	BlockState
}

type SwitchSnapshot struct {
	Comment string `json:"comment"`
	SwitchState
}

type SignalSnapshot struct {
	Comment  string        `json:"comment"`
	Protects layout.BlockI `json:"protects"`
	Aspect   layout.Aspect `json:"aspect"`
}

func (t *Track) Snapshot() Snapshot {
	st := t.State()
	y := t.Layout
	s := Snapshot{
		Blocks:       make([]BlockSnapshot, len(y.Blocks)),
		Switches:     make([]SwitchSnapshot, len(y.Switches)),
		Signals:      make([]SignalSnapshot, len(y.Signals)),
		Reservations: st.Reservations(),
	}
	for i, b := range y.Blocks {
		s.Blocks[i] = BlockSnapshot{Comment: b.Comment, BlockState: st.Blocks[i]}
	}
	for i, sw := range y.Switches {
		s.Switches[i] = SwitchSnapshot{Comment: sw.Comment, SwitchState: st.Switches[i]}
	}
	for i, sig := range y.Signals {
		s.Signals[i] = SignalSnapshot{Comment: sig.Comment, Protects: sig.Protects, Aspect: Aspect(y, sig, st)}
	}
	return s
}
