package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	. "nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/tal/layout"
)

// Topics maps between topics and layout objects. Blocks, switches and signals are named by their comments; trains by
// their address.
//
//	<prefix>/block/<block>/occupancy   in  {"occupied":true}
//	<prefix>/switch/<switch>/feedback  in  {"position":1}
//	<prefix>/fault                     in  {"train":3,"message":"derailed"}
//	<prefix>/power                     in  {"on":false}
//	<prefix>/train/<train>/speed       out {"speed":80,"direction":"fwd"}
//	<prefix>/switch/<switch>/set       out {"position":1}
//	<prefix>/signal/<signal>/aspect    out {"aspect":"caution"}
type Topics struct {
	Prefix string
	Layout *layout.Layout
}

type occupancyPayload struct {
	Occupied bool `json:"occupied"`
}

type positionPayload struct {
	Position layout.Position `json:"position"`
}

type faultPayload struct {
	Train   TrainID `json:"train"`
	Message string  `json:"message"`
}

type powerPayload struct {
	On bool `json:"on"`
}

type speedPayload struct {
	Speed     Speed  `json:"speed"`
	Direction string `json:"direction"`
}

type aspectPayload struct {
	Aspect string `json:"aspect"`
}

// Subscriptions returns the filters covering every inbound topic.
func (t Topics) Subscriptions() []string {
	return []string{
		t.Prefix + "/block/+/occupancy",
		t.Prefix + "/switch/+/feedback",
		t.Prefix + "/fault",
		t.Prefix + "/power",
	}
}

// Decode turns an inbound message into a value.
func (t Topics) Decode(topic string, payload []byte) (conn.Val, error) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 3 && parts[0] == "block" && parts[2] == "occupancy":
		b, ok := t.Layout.LookupBlock(parts[1])
		if !ok {
			return nil, fmt.Errorf("%w: block %s", ErrUnknownName, parts[1])
		}
		var p occupancyPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		return conn.ValOccupancy{Block: b, Occupied: p.Occupied}, nil
	case len(parts) == 3 && parts[0] == "switch" && parts[2] == "feedback":
		s, ok := t.Layout.LookupSwitch(parts[1])
		if !ok {
			return nil, fmt.Errorf("%w: switch %s", ErrUnknownName, parts[1])
		}
		var p positionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		if p.Position < 0 || int(p.Position) >= t.Layout.Switches[s].Positions {
			return nil, fmt.Errorf("%w: switch %s has no position %d", ErrBadPayload, parts[1], p.Position)
		}
		return conn.ValSwitch{Switch: s, Position: p.Position}, nil
	case len(parts) == 1 && parts[0] == "fault":
		var p faultPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		return conn.ValFault{Train: p.Train, Message: p.Message}, nil
	case len(parts) == 1 && parts[0] == "power":
		var p powerPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		return conn.ValPower{On: p.On}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

// Encode turns a request into an outbound message.
func (t Topics) Encode(r conn.Req) (topic string, payload []byte, err error) {
	var v any
	switch r := r.(type) {
	case conn.ReqSpeed:
		topic = t.Prefix + "/train/" + strconv.Itoa(int(r.Train)) + "/speed"
		v = speedPayload{Speed: r.Speed, Direction: r.Direction.String()}
	case conn.ReqSwitch:
		if r.Switch < 0 || int(r.Switch) >= len(t.Layout.Switches) {
			return "", nil, fmt.Errorf("%w: switch %d", ErrUnknownName, r.Switch)
		}
		topic = t.Prefix + "/switch/" + t.Layout.Switches[r.Switch].Comment + "/set"
		v = positionPayload{Position: r.Position}
	case conn.ReqSignal:
		if r.Signal < 0 || int(r.Signal) >= len(t.Layout.Signals) {
			return "", nil, fmt.Errorf("%w: signal %d", ErrUnknownName, r.Signal)
		}
		topic = t.Prefix + "/signal/" + t.Layout.Signals[r.Signal].Comment + "/aspect"
		v = aspectPayload{Aspect: r.Aspect.String()}
	default:
		return "", nil, fmt.Errorf("unsupported req %T", r)
	}
	payload, err = json.Marshal(v)
	return topic, payload, err
}
