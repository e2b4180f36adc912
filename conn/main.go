// Package conn is the boundary to whatever talks to the layout hardware.
// Commands go out fire-and-forget; their effect is only known from later values.
package conn

import "sync"

// Commander sends commands to the layout.
// Send must not block for long; a nil error only means the command was handed off.
type Commander interface {
	Send(r Req) error
}

// Adapter is a Commander that also reports values from the layout.
type Adapter interface {
	Commander
	// Vals is closed when the adapter stops.
	Vals() <-chan Val
}

// Recorder is a Commander that remembers everything sent to it, and optionally forwards it.
type Recorder struct {
	Next Commander

	lock sync.Mutex
	reqs []Req
}

func (r *Recorder) Send(req Req) error {
	r.lock.Lock()
	r.reqs = append(r.reqs, req)
	r.lock.Unlock()
	if r.Next != nil {
		return r.Next.Send(req)
	}
	return nil
}

// Reqs returns everything sent so far.
func (r *Recorder) Reqs() []Req {
	r.lock.Lock()
	defer r.lock.Unlock()
	res := make([]Req, len(r.reqs))
	copy(res, r.reqs)
	return res
}

// Take returns everything sent so far and forgets it.
func (r *Recorder) Take() []Req {
	r.lock.Lock()
	defer r.lock.Unlock()
	res := r.reqs
	r.reqs = nil
	return res
}
