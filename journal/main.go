// Package journal keeps an append-only audit log of reservations, coordinator transitions, commands and faults.
package journal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal/layout"
)

type Kind string

const (
	KindGrant      Kind = "grant"
	KindRelease    Kind = "release"
	KindSwitch     Kind = "switch"
	KindTransition Kind = "transition"
	KindCommand    Kind = "command"
	KindFault      Kind = "fault"
)

type Entry struct {
	Seq     uint64         `json:"seq"`
	Time    time.Time      `json:"time"`
	Kind    Kind           `json:"kind"`
	Train   shingo.TrainID `json:"train"`
	Block   layout.BlockI  `json:"block"`
	Detail  string         `json:"detail"`
	Request uuid.UUID      `json:"request"`
}

func (e Entry) String() string {
	return fmt.Sprintf("#%d %s %s t%d b%d %s", e.Seq, e.Time.Format(time.RFC3339Nano), e.Kind, e.Train, e.Block, e.Detail)
}

// Recorder accepts entries. Record must not block.
type Recorder interface {
	Record(e Entry)
}

// Store persists entries.
type Store interface {
	Append(es []Entry) error
	// Since returns up to limit entries with Seq > seq, in order.
	Since(seq uint64, limit int) ([]Entry, error)
	Close() error
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) {}

const queueSize = 256

// Journal numbers entries and writes them to a Store in the background.
type Journal struct {
	store   Store
	lock    sync.Mutex
	seq     uint64
	queue   chan Entry
	done    chan struct{}
	closed  bool
	dropped uint64
}

// New starts a Journal on top of store. Entries already in store are not renumbered; numbering continues after the last one.
func New(store Store) (*Journal, error) {
	j := &Journal{
		store: store,
		queue: make(chan Entry, queueSize),
		done:  make(chan struct{}),
	}
	last, err := lastSeq(store)
	if err != nil {
		return nil, fmt.Errorf("read last seq: %w", err)
	}
	j.seq = last
	go j.write()
	return j, nil
}

func lastSeq(store Store) (uint64, error) {
	var last uint64
	for {
		es, err := store.Since(last, 512)
		if err != nil {
			return 0, err
		}
		if len(es) == 0 {
			return last, nil
		}
		last = es[len(es)-1].Seq
	}
}

func (j *Journal) Record(e Entry) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.closed {
		return
	}
	j.seq++
	e.Seq = j.seq
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case j.queue <- e:
	default:
		j.dropped++
		zap.S().Warnw("journal: queue full, dropped entry", "entry", e.String(), "dropped", j.dropped)
	}
}

func (j *Journal) write() {
	defer close(j.done)
	for e := range j.queue {
		batch := []Entry{e}
	drain:
		for {
			select {
			case e, ok := <-j.queue:
				if !ok {
					break drain
				}
				batch = append(batch, e)
			default:
				break drain
			}
		}
		err := j.store.Append(batch)
		if err != nil {
			zap.S().Errorw("journal: append failed", "err", err, "n", len(batch))
		}
	}
}

// Since reads entries back from the store.
func (j *Journal) Since(seq uint64, limit int) ([]Entry, error) {
	return j.store.Since(seq, limit)
}

// Close flushes pending entries and closes the store.
func (j *Journal) Close() error {
	j.lock.Lock()
	if j.closed {
		j.lock.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.lock.Unlock()
	<-j.done
	return j.store.Close()
}
