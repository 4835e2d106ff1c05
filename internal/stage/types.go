package stage

// Stage is a named, time-boxed minting phase. Stages are created once and
// never renamed or deleted; only the mutable fields below change.
type Stage struct {
	Name              string
	SignatureRequired bool
	PerAddressLimit   uint64
	Cap               uint64 // per-stage max supply, 0 = unlimited
	StartTime         int64  // unix seconds, inclusive
	EndTime           int64  // unix seconds, inclusive
}

// State is derived from the window and the clock, never stored.
type State uint8

const (
	StatePending State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// StateAt derives the stage state at the given time.
func (s *Stage) StateAt(now int64) State {
	switch {
	case now < s.StartTime:
		return StatePending
	case now > s.EndTime:
		return StateEnded
	default:
		return StateActive
	}
}

// ActiveAt reports whether minting is permitted at the given time.
func (s *Stage) ActiveAt(now int64) bool {
	return s.StateAt(now) == StateActive
}
