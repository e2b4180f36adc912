package tal

import (
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal/layout"
)

// Aspect derives what sig shows from st. Nothing else decides a signal's aspect.
//
// A signal shows stop unless its protected block is clear and held by the train in the approach block, with the switch
// between them set and confirmed. It then shows proceed if the same train also holds a block beyond, and caution otherwise.
func Aspect(y *layout.Layout, sig layout.Signal, st State) layout.Aspect {
	p := st.Blocks[sig.Protects]
	if p.Occupancy != OccupancyClear || p.Holder == shingo.NoTrain {
		return layout.AspectStop
	}
	if sig.Approach != layout.NoBlock {
		if st.Blocks[sig.Approach].Holder != p.Holder {
			return layout.AspectStop
		}
		if !setBetween(y, st, sig.Approach, sig.Protects) {
			return layout.AspectStop
		}
	}
	for _, arc := range y.Neighbors(sig.Protects) {
		if arc.To == sig.Approach {
			continue
		}
		if st.Blocks[arc.To].Holder == p.Holder && arcSet(st, arc) {
			return layout.AspectProceed
		}
	}
	return layout.AspectCaution
}

func arcSet(st State, arc layout.Arc) bool {
	if arc.Switch == layout.NoSwitch {
		return true
	}
	sw := st.Switches[arc.Switch]
	return sw.Position == arc.Position && sw.Confirmed
}

func setBetween(y *layout.Layout, st State, from, to layout.BlockI) bool {
	for _, arc := range y.Neighbors(from) {
		if arc.To == to && arcSet(st, arc) {
			return true
		}
	}
	return false
}

// Aspects returns the aspect of every signal, computed from one consistent copy of the state.
func (t *Track) Aspects() []layout.Aspect {
	st := t.State()
	res := make([]layout.Aspect, len(t.Layout.Signals))
	for i, sig := range t.Layout.Signals {
		res[i] = Aspect(t.Layout, sig, st)
	}
	return res
}
