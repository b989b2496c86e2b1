package session

// State is a lifecycle stage.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateTrustInstalling
	StateResolutionOverriding
	StateServing
	StateTearingDown
)

var stateNames = map[State]string{
	StateIdle:                 "idle",
	StateGenerating:           "generating",
	StateTrustInstalling:      "trust_installing",
	StateResolutionOverriding: "resolution_overriding",
	StateServing:              "serving",
	StateTearingDown:          "tearing_down",
}

func (state State) String() string {
	if name, ok := stateNames[state]; ok {
		return name
	}
	return "unknown"
}
