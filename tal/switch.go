package tal

import (
	"fmt"

	"nyiyui.ca/hato/shingo/tal/layout"
)

// SwitchState is the last commanded position of a switch and whether feedback confirmed it.
type SwitchState struct {
	Position  layout.Position `json:"position"`
	Confirmed bool            `json:"confirmed"`
}

func (s SwitchState) String() string {
	if s.Confirmed {
		return s.Position.String()
	}
	return fmt.Sprintf("%s?", s.Position)
}

// SwitchRequest asks for switch Switch to be set to Position.
type SwitchRequest struct {
	Switch   layout.SwitchI
	Position layout.Position
}

func (s SwitchRequest) String() string {
	return fmt.Sprintf("switch-set(%d-%s)", s.Switch, s.Position)
}
