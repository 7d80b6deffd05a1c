package service

type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageDegraded StageStatus = "degraded"
	StageSkipped  StageStatus = "skipped"
	StageFailed   StageStatus = "failed"
)

const (
	stageValidate = "validate"
	stageSnap     = "snap"
	stageSmooth   = "smooth"
	stageRoute    = "route"
	stageMatch    = "match"
)

// StageResult is the outcome of one pipeline stage. Err is set for degraded
// and failed stages, and for skipped stages when a dependency was missing.
type StageResult struct {
	Stage  string
	Status StageStatus
	Err    error
}

func stageOK(stage string) StageResult {
	return StageResult{Stage: stage, Status: StageOK}
}

func stageWith(stage string, status StageStatus, err error) StageResult {
	return StageResult{Stage: stage, Status: status, Err: err}
}
