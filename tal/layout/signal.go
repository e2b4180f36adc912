package layout

import "fmt"

// Aspect is what a signal shows.
type Aspect int

const (
	AspectStop Aspect = iota
	AspectCaution
	AspectProceed
)

func (a Aspect) String() string {
	switch a {
	case AspectStop:
		return "stop"
	case AspectCaution:
		return "caution"
	case AspectProceed:
		return "proceed"
	default:
		return fmt.Sprintf("aspect%d", int(a))
	}
}

func (a Aspect) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
