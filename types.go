package shingo

import "fmt"

// TrainID identifies a locomotive. It is the decoder address, so 0 (broadcast) is never a valid train.
type TrainID uint16

// NoTrain is the holder of a block nobody holds.
const NoTrain TrainID = 0

func (t TrainID) String() string {
	if t == NoTrain {
		return "<t:none>"
	}
	return fmt.Sprintf("<t:%d>", uint16(t))
}

// Speed is a speed step as sent to a decoder.
// Positive values are Drive(n); 0 is Stop and SpeedEmergencyStop stops without deceleration.
type Speed int

const (
	SpeedEmergencyStop Speed = -1
	SpeedStop          Speed = 0
	// SpeedMax is the highest drive step (128-step decoders).
	SpeedMax Speed = 126
)

// Drive returns a drive speed step, clamped to 1..SpeedMax.
func Drive(n int) Speed {
	if n < 1 {
		n = 1
	}
	if n > int(SpeedMax) {
		n = int(SpeedMax)
	}
	return Speed(n)
}

func (s Speed) Moving() bool { return s > 0 }

func (s Speed) String() string {
	switch {
	case s == SpeedEmergencyStop:
		return "estop"
	case s == SpeedStop:
		return "stop"
	case s > 0:
		return fmt.Sprintf("drive(%d)", int(s))
	default:
		return fmt.Sprintf("speed(%d)", int(s))
	}
}
