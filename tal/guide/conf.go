package guide

import (
	"time"

	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal/plan"
)

const (
	DefaultLookahead    = 2
	DefaultStallTimeout = 30 * time.Second
	DefaultMaxReplans   = 2
	// DefaultDeceleration is in µm/s².
	DefaultDeceleration = 100000
	DefaultRampInterval = 100 * time.Millisecond
)

type Conf struct {
	// Lookahead is how many blocks past the current one a moving train holds.
	Lookahead int
	// StallTimeout is how long a moving train may go without entering its next block.
	StallTimeout time.Duration
	// ClearDebounce is how long a trailing block must stay clear before it is released. Zero releases immediately.
	ClearDebounce time.Duration
	// MaxReplans bounds re-planning around a denied block between two block advances.
	// Zero means DefaultMaxReplans and negative disables re-planning.
	MaxReplans int
	Metric     plan.Metric
	// Clock is the real clock if nil.
	Clock Clock
}

func (c *Conf) setDefaults() {
	if c.Lookahead <= 0 {
		c.Lookahead = DefaultLookahead
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	switch {
	case c.MaxReplans == 0:
		c.MaxReplans = DefaultMaxReplans
	case c.MaxReplans < 0:
		c.MaxReplans = 0
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
}

// TrainConf is how a train is driven.
type TrainConf struct {
	Comment string
	// Cruise is the speed with at least two blocks of authority.
	Cruise shingo.Speed
	// Caution is the speed with one block of authority.
	Caution shingo.Speed
	// Relation maps speed steps to velocity in µm/s.
	Relation plan.Relation
	// Deceleration in µm/s².
	Deceleration int64
	// RampStep is how many speed steps the speed may change by per RampInterval. Zero changes speed at once.
	// Emergency stops are never ramped.
	RampStep shingo.Speed
	// RampInterval is DefaultRampInterval if zero.
	RampInterval time.Duration
}

func (tc *TrainConf) setDefaults() {
	if tc.Cruise <= 0 {
		tc.Cruise = shingo.Drive(80)
	}
	if tc.Caution <= 0 || tc.Caution > tc.Cruise {
		tc.Caution = tc.Cruise / 2
		if tc.Caution == 0 {
			tc.Caution = tc.Cruise
		}
	}
	if len(tc.Relation.Coeffs) == 0 {
		tc.Relation = plan.Linear(1000)
	}
	if tc.Deceleration <= 0 {
		tc.Deceleration = DefaultDeceleration
	}
	if tc.RampStep < 0 {
		tc.RampStep = 0
	}
	if tc.RampInterval <= 0 {
		tc.RampInterval = DefaultRampInterval
	}
}

// Clock schedules the coordinators' timers.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
