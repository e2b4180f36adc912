package tal

import (
	"sort"

	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/journal"
	"nyiyui.ca/hato/shingo/tal/layout"
)

// Reservation is a train's claim on a block.
type Reservation struct {
	Block layout.BlockI  `json:"block"`
	Train shingo.TrainID `json:"train"`
	Seq   uint64         `json:"seq"`
}

// TryReserve grants b to train, or returns a *DeniedError.
// Reserving a block the train already holds is granted again without a new sequence number.
// A block reported occupied is never granted to a train that doesn't already hold it.
func (t *Track) TryReserve(b layout.BlockI, train shingo.TrainID) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	st := &t.blocks[b]
	switch {
	case st.Holder == train:
		return nil
	case st.Holder != shingo.NoTrain:
		zap.S().Debugw("reservation denied", "block", b, "train", train, "holder", st.Holder)
		return &DeniedError{Block: b, Train: train, Reason: AlreadyHeld, Holder: st.Holder}
	case st.Occupancy == OccupancyOccupied:
		zap.S().Debugw("reservation denied", "block", b, "train", train, "occupancy", st.Occupancy)
		return &DeniedError{Block: b, Train: train, Reason: PhysicallyOccupied}
	}
	t.grant(b, train)
	return nil
}

// grant must be called with lock held.
func (t *Track) grant(b layout.BlockI, train shingo.TrainID) {
	t.seq++
	t.blocks[b].Holder = train
	t.blocks[b].Seq = t.seq
	zap.S().Debugw("reservation granted", "block", b, "train", train, "seq", t.seq)
	t.rec.Record(journal.Entry{Kind: journal.KindGrant, Train: train, Block: b})
}

// Place grants b to train regardless of occupancy, as long as no other train holds it.
// This is for registering a train on the block it is standing on.
func (t *Track) Place(b layout.BlockI, train shingo.TrainID) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	st := &t.blocks[b]
	if st.Holder == train {
		return nil
	}
	if st.Holder != shingo.NoTrain {
		return &DeniedError{Block: b, Train: train, Reason: AlreadyHeld, Holder: st.Holder}
	}
	t.grant(b, train)
	return nil
}

// Release gives up train's claim on b. Releasing a block train doesn't hold does nothing.
func (t *Track) Release(b layout.BlockI, train shingo.TrainID) (released bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.release(b, train)
}

func (t *Track) release(b layout.BlockI, train shingo.TrainID) bool {
	st := &t.blocks[b]
	if st.Holder != train || train == shingo.NoTrain {
		return false
	}
	st.Holder = shingo.NoTrain
	st.Seq = 0
	zap.S().Debugw("reservation released", "block", b, "train", train)
	t.rec.Record(journal.Entry{Kind: journal.KindRelease, Train: train, Block: b})
	return true
}

// ReleaseAll releases every block train holds, and returns them in ascending order.
func (t *Track) ReleaseAll(train shingo.TrainID) []layout.BlockI {
	t.lock.Lock()
	defer t.lock.Unlock()
	res := []layout.BlockI{}
	for bi := range t.blocks {
		if t.release(layout.BlockI(bi), train) {
			res = append(res, layout.BlockI(bi))
		}
	}
	return res
}

// Holder returns the train holding b.
func (t *Track) Holder(b layout.BlockI) (shingo.TrainID, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	h := t.blocks[b].Holder
	return h, h != shingo.NoTrain
}

// Held returns the blocks train holds in ascending order.
func (t *Track) Held(train shingo.TrainID) []layout.BlockI {
	t.lock.Lock()
	defer t.lock.Unlock()
	res := []layout.BlockI{}
	for bi, st := range t.blocks {
		if st.Holder == train && train != shingo.NoTrain {
			res = append(res, layout.BlockI(bi))
		}
	}
	return res
}

// Reservations returns every reservation, oldest first.
func (t *Track) Reservations() []Reservation {
	return t.State().Reservations()
}

// Reservations returns every reservation in st, oldest first.
func (st State) Reservations() []Reservation {
	res := []Reservation{}
	for bi, b := range st.Blocks {
		if b.Holder != shingo.NoTrain {
			res = append(res, Reservation{Block: layout.BlockI(bi), Train: b.Holder, Seq: b.Seq})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Seq < res[j].Seq })
	return res
}
