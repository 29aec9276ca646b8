package models

// Decision is the loop guard's classification of a candidate event.
type Decision struct {
	IsErrorLoop bool    `json:"isErrorLoop"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
}

// LoopAction is the policy action derived from a Decision by the ingest
// pipeline (see the guard's confidence thresholds).
type LoopAction string

const (
	ActionNormal LoopAction = "normal"
	ActionWarn   LoopAction = "warn"
	ActionStop   LoopAction = "stop"
)

// ActionFor maps a decision to its policy action:
// confidence >= 0.95 with isErrorLoop stops the event, confidence in
// (0.7, 0.95) warns (text suffix + delayed fan-out), anything else is normal.
func ActionFor(d Decision) LoopAction {
	if !d.IsErrorLoop {
		return ActionNormal
	}
	if d.Confidence >= 0.95 {
		return ActionStop
	}
	if d.Confidence > 0.7 {
		return ActionWarn
	}
	return ActionNormal
}
