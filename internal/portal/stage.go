package portal

// Stage is the position of a publish run in its state machine
type Stage string

const (
	StageIdle           Stage = "idle"
	StageLoggingIn      Stage = "logging_in"
	StageSelectingSalon Stage = "selecting_salon"
	StageNavigatingForm Stage = "navigating_form"
	StageFillingContent Stage = "filling_content"
	StageConfirming     Stage = "confirming"
	StageCommitting     Stage = "committing"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
)

var stageOrder = map[Stage]int{
	StageIdle:           0,
	StageLoggingIn:      1,
	StageSelectingSalon: 2,
	StageNavigatingForm: 3,
	StageFillingContent: 4,
	StageConfirming:     5,
	StageCommitting:     6,
	StageCompleted:      7,
	StageFailed:         7,
}

// Terminal reports whether no further transitions are possible
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// canAdvance allows forward moves only; Failed is reachable from any non-terminal stage
func (s Stage) canAdvance(to Stage) bool {
	if s.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	return stageOrder[to] > stageOrder[s]
}
