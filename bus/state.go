package bus

// State is the lifecycle state of a bus context. States only advance, except that Deinit returns
// a context to Uninitialized.
type State int32

// The lifecycle states.
const (
	Uninitialized State = iota
	Initialized
	Configured
	DriverInstalled
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Configured:
		return "configured"
	case DriverInstalled:
		return "driver installed"
	default:
		return "unknown"
	}
}

// IsConfigured reports whether data operations are allowed in s.
func (s State) IsConfigured() bool {
	return s >= Configured
}
