package sim

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/tal/layout"
)

func newSim(t *testing.T, init func() (*layout.Layout, error), switchTime time.Duration) *Simulator {
	y, err := init()
	if err != nil {
		t.Fatalf("init: %s", err)
	}
	return New(Conf{Layout: y, SwitchTime: switchTime})
}

func take(s *Simulator) []conn.Val {
	vals := []conn.Val{}
	for {
		select {
		case v := <-s.Vals():
			vals = append(vals, v)
		default:
			return vals
		}
	}
}

func TestMove(t *testing.T) {
	s := newSim(t, layout.InitTestbench1, 0)
	y := s.conf.Layout
	b1, b2 := y.MustLookup("1"), y.MustLookup("2")
	s.Place(1, b1)
	if diff := cmp.Diff([]conn.Val{conn.ValOccupancy{Block: b1, Occupied: true}}, take(s)); diff != "" {
		t.Fatalf("place: %s", diff)
	}
	if err := s.Send(conn.ReqSpeed{Train: 1, Speed: Drive(80), Direction: layout.DirectionForward}); err != nil {
		t.Fatalf("send: %s", err)
	}
	// 80 steps is 80mm/s, and a block is about 624mm
	for i := 0; i < 7; i++ {
		s.Step(time.Second)
	}
	if vals := take(s); len(vals) != 0 {
		t.Fatalf("moved early: %v", vals)
	}
	s.Step(time.Second)
	want := []conn.Val{
		conn.ValOccupancy{Block: b2, Occupied: true},
		conn.ValOccupancy{Block: b1, Occupied: false},
	}
	if diff := cmp.Diff(want, take(s)); diff != "" {
		t.Fatalf("crossing: %s", diff)
	}
	if b, _ := s.Position(1); b != b2 {
		t.Fatalf("position %d", b)
	}

	s.Send(conn.ReqSpeed{Train: 1, Speed: SpeedEmergencyStop, Direction: layout.DirectionForward})
	for i := 0; i < 20; i++ {
		s.Step(time.Second)
	}
	if vals := take(s); len(vals) != 0 {
		t.Fatalf("moved after stop: %v", vals)
	}
	if err := s.Send(conn.ReqSpeed{Train: 2, Speed: Drive(1)}); err == nil {
		t.Fatalf("unknown train accepted")
	}
}

func TestPower(t *testing.T) {
	s := newSim(t, layout.InitTestbench1, 0)
	s.Place(1, 0)
	take(s)
	s.Send(conn.ReqSpeed{Train: 1, Speed: SpeedMax, Direction: layout.DirectionForward})
	s.SetPower(false)
	s.SetPower(false)
	for i := 0; i < 20; i++ {
		s.Step(time.Second)
	}
	if diff := cmp.Diff([]conn.Val{conn.ValPower{On: false}}, take(s)); diff != "" {
		t.Fatalf("power off: %s", diff)
	}
	s.SetPower(true)
	s.Step(10 * time.Second)
	if b, _ := s.Position(1); b != 1 {
		t.Fatalf("position after power on: %d", b)
	}
}

func TestSwitchTime(t *testing.T) {
	s := newSim(t, layout.InitTestbench2, 500*time.Millisecond)
	m := s.conf.Layout.MustLookupSwitch("m")
	s.Send(conn.ReqSwitch{Switch: m, Position: layout.PositionCurved})
	s.Step(400 * time.Millisecond)
	if vals := take(s); len(vals) != 0 {
		t.Fatalf("switch reported early: %v", vals)
	}
	s.Step(200 * time.Millisecond)
	if diff := cmp.Diff([]conn.Val{conn.ValSwitch{Switch: m, Position: layout.PositionCurved}}, take(s)); diff != "" {
		t.Fatalf("switch: %s", diff)
	}
	if err := s.Send(conn.ReqSwitch{Switch: 99}); err == nil {
		t.Fatalf("unknown switch accepted")
	}
}

func TestFollowsSwitch(t *testing.T) {
	s := newSim(t, layout.InitTestbench2, 10*time.Second)
	y := s.conf.Layout
	d := y.MustLookupSwitch("d")
	s.Send(conn.ReqSwitch{Switch: d, Position: layout.PositionCurved})
	s.Place(1, y.MustLookup("3"))
	s.Send(conn.ReqSpeed{Train: 1, Speed: SpeedMax, Direction: layout.DirectionForward})
	// d is still moving, so the train waits at the end of 3
	for i := 0; i < 9; i++ {
		s.Step(time.Second)
	}
	if b, _ := s.Position(1); b != y.MustLookup("3") {
		t.Fatalf("ran through a moving switch into %d", b)
	}
	s.Step(time.Second)
	s.Step(time.Second)
	if b, _ := s.Position(1); b != y.MustLookup("8") {
		t.Fatalf("expected 8, got %d", b)
	}
}

func TestOutOfTrack(t *testing.T) {
	s := newSim(t, layout.InitTestbench2, 0)
	y := s.conf.Layout
	s.Place(1, y.MustLookup("2"))
	take(s)
	s.Send(conn.ReqSpeed{Train: 1, Speed: SpeedMax, Direction: layout.DirectionReverse})
	s.Step(5 * time.Second)
	vals := take(s)
	if len(vals) != 1 {
		t.Fatalf("vals: %v", vals)
	}
	f, ok := vals[0].(conn.ValFault)
	if !ok || f.Train != 1 || !strings.Contains(f.Message, "ran out of track") {
		t.Fatalf("expected fault, got %v", vals[0])
	}
	if s.Speed(1).Moving() {
		t.Fatalf("still moving")
	}
}

func TestCollision(t *testing.T) {
	s := newSim(t, layout.InitTestbench1, 0)
	events := make(chan Event, 8)
	s.Events().Subscribe("test", events)
	defer s.Events().Unsubscribe(events)
	s.Place(1, 0)
	s.Place(2, 1)
	take(s)
	s.Send(conn.ReqSpeed{Train: 1, Speed: SpeedMax, Direction: layout.DirectionForward})
	s.Step(5 * time.Second)
	if s.Collisions() != 1 {
		t.Fatalf("collisions: %d", s.Collisions())
	}
	want := []conn.Val{
		conn.ValFault{Train: NoTrain, Message: "collision in 2"},
		conn.ValOccupancy{Block: 0, Occupied: false},
	}
	if diff := cmp.Diff(want, take(s)); diff != "" {
		t.Fatalf("vals: %s", diff)
	}
	timeout := time.After(time.Second)
	for {
		select {
		case e := <-events:
			if ec, ok := e.(EventCollision); ok {
				if diff := cmp.Diff([]TrainID{1, 2}, ec.Trains); diff != "" {
					t.Fatalf("collision trains: %s", diff)
				}
				return
			}
		case <-timeout:
			t.Fatalf("no collision event")
		}
	}
}

func TestReport(t *testing.T) {
	s := newSim(t, layout.InitTestbench3, 0)
	s.Place(1, 2)
	take(s)
	s.Report()
	want := []conn.Val{
		conn.ValOccupancy{Block: 0, Occupied: false},
		conn.ValOccupancy{Block: 1, Occupied: false},
		conn.ValOccupancy{Block: 2, Occupied: true},
		conn.ValOccupancy{Block: 3, Occupied: false},
		conn.ValOccupancy{Block: 4, Occupied: false},
		conn.ValSwitch{Switch: 0, Position: layout.PositionStraight},
		conn.ValSwitch{Switch: 1, Position: layout.PositionStraight},
	}
	if diff := cmp.Diff(want, take(s)); diff != "" {
		t.Fatalf("report: %s", diff)
	}
}
