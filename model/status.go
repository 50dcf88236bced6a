package model

// AlgorithmStatus is the lifecycle state of a running algorithm. Only the
// algorithm manager writes Running; external setters write terminal states.
type AlgorithmStatus string

const (
	StatusInitializing AlgorithmStatus = "initializing"
	StatusRunning      AlgorithmStatus = "running"
	StatusStopped      AlgorithmStatus = "stopped"
	StatusLiquidated   AlgorithmStatus = "liquidated"
	StatusDeleted      AlgorithmStatus = "deleted"
	StatusCompleted    AlgorithmStatus = "completed"
	StatusRuntimeError AlgorithmStatus = "runtime-error"
)

// IsTerminal reports whether the status ends the algorithm loop.
func (s AlgorithmStatus) IsTerminal() bool {
	switch s {
	case StatusStopped, StatusLiquidated, StatusDeleted, StatusCompleted, StatusRuntimeError:
		return true
	}
	return false
}
