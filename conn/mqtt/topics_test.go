package mqtt

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	. "nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/tal/layout"
)

func testTopics(t *testing.T) Topics {
	y, err := layout.InitTestbench2()
	if err != nil {
		t.Fatalf("InitTestbench2: %s", err)
	}
	return Topics{Prefix: "shingo", Layout: y}
}

func TestDecode(t *testing.T) {
	tp := testTopics(t)
	y := tp.Layout
	cases := []struct {
		topic   string
		payload string
		want    conn.Val
		err     error
	}{
		{"shingo/block/3/occupancy", `{"occupied":true}`, conn.ValOccupancy{Block: y.MustLookup("3"), Occupied: true}, nil},
		{"shingo/block/9/occupancy", `{"occupied":false}`, conn.ValOccupancy{Block: y.MustLookup("9")}, nil},
		{"shingo/switch/m/feedback", `{"position":1}`, conn.ValSwitch{Switch: y.MustLookupSwitch("m"), Position: layout.PositionCurved}, nil},
		{"shingo/fault", `{"train":3,"message":"derailed"}`, conn.ValFault{Train: 3, Message: "derailed"}, nil},
		{"shingo/power", `{"on":false}`, conn.ValPower{On: false}, nil},
		{"shingo/block/42/occupancy", `{"occupied":true}`, nil, ErrUnknownName},
		{"shingo/switch/m/feedback", `{"position":2}`, nil, ErrBadPayload},
		{"shingo/block/3/occupancy", `occupied`, nil, ErrBadPayload},
		{"shingo/block/3", `{}`, nil, ErrUnknownTopic},
		{"other/power", `{"on":true}`, nil, ErrUnknownTopic},
	}
	for _, c := range cases {
		t.Run(c.topic, func(t *testing.T) {
			got, err := tp.Decode(c.topic, []byte(c.payload))
			if c.err != nil {
				if !errors.Is(err, c.err) {
					t.Fatalf("expected %v, got %v", c.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %s", err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("diff: %s", diff)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tp := testTopics(t)
	y := tp.Layout
	cases := []struct {
		req     conn.Req
		topic   string
		payload string
	}{
		{conn.ReqSpeed{Train: 3, Speed: Drive(80), Direction: layout.DirectionForward}, "shingo/train/3/speed", `{"speed":80,"direction":"fwd"}`},
		{conn.ReqSpeed{Train: 3, Speed: SpeedEmergencyStop, Direction: layout.DirectionReverse}, "shingo/train/3/speed", `{"speed":-1,"direction":"rev"}`},
		{conn.ReqSwitch{Switch: y.MustLookupSwitch("d"), Position: layout.PositionCurved}, "shingo/switch/d/set", `{"position":1}`},
		{conn.ReqSignal{Signal: y.MustLookupSignal("3a"), Aspect: layout.AspectStop}, "shingo/signal/3a/aspect", `{"aspect":"stop"}`},
	}
	for _, c := range cases {
		t.Run(c.req.String(), func(t *testing.T) {
			topic, payload, err := tp.Encode(c.req)
			if err != nil {
				t.Fatalf("encode: %s", err)
			}
			if topic != c.topic {
				t.Fatalf("topic %s, expected %s", topic, c.topic)
			}
			if string(payload) != c.payload {
				t.Fatalf("payload %s, expected %s", payload, c.payload)
			}
		})
	}
	if _, _, err := tp.Encode(conn.ReqSwitch{Switch: 7}); !errors.Is(err, ErrUnknownName) {
		t.Fatalf("unknown switch: %v", err)
	}
}

// Feedback for a switch round-trips through the topic a controller would answer on.
func TestSwitchRoundTrip(t *testing.T) {
	tp := testTopics(t)
	m := tp.Layout.MustLookupSwitch("m")
	topic, payload, err := tp.Encode(conn.ReqSwitch{Switch: m, Position: layout.PositionCurved})
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	feedback := topic[:len(topic)-len("set")] + "feedback"
	v, err := tp.Decode(feedback, payload)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if diff := cmp.Diff(conn.ValSwitch{Switch: m, Position: layout.PositionCurved}, v); diff != "" {
		t.Fatalf("diff: %s", diff)
	}
}

func TestHandleDropsBadMessages(t *testing.T) {
	a := &Adapter{topics: testTopics(t), vals: make(chan conn.Val, 1)}
	a.handle("shingo/block/nope/occupancy", []byte(`{"occupied":true}`))
	a.handle("shingo/power", []byte(`{"on":true}`))
	a.handle("shingo/power", []byte(`{"on":false}`))
	select {
	case v := <-a.Vals():
		if diff := cmp.Diff(conn.ValPower{On: true}, v); diff != "" {
			t.Fatalf("diff: %s", diff)
		}
	default:
		t.Fatalf("nothing delivered")
	}
	select {
	case v := <-a.Vals():
		t.Fatalf("overflow delivered %v", v)
	default:
	}
}
