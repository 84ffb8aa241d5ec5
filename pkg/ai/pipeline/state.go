package pipeline

type State int

const (
	StateIdle State = iota
	StateResearcherRunning
	StateResearcherDone
	StateAnalystRunning
	StateAnalystDone
	StateWriterRunning
	StateWriterDone
	StatePersisted
	StateClosed
)

var stateNames = [...]string{
	"idle",
	"researcher_running",
	"researcher_done",
	"analyst_running",
	"analyst_done",
	"writer_running",
	"writer_done",
	"persisted",
	"closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// advance moves one step forward; runs never skip or revisit a state.
func (s *State) advance(next State) {
	if next != *s+1 {
		panic("pipeline: illegal transition " + s.String() + " -> " + next.String())
	}
	*s = next
}
