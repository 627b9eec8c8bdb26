package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncStep is one stage of a sync cycle
type SyncStep string

const (
	SyncStepIdle               SyncStep = "IDLE"
	SyncStepPrepareInitial     SyncStep = "PREPARE_INITIAL"
	SyncStepPush               SyncStep = "PUSH"
	SyncStepWaitForIntegration SyncStep = "WAIT_FOR_INTEGRATION"
	SyncStepPullCentral        SyncStep = "PULL_CENTRAL"
	SyncStepPullRemote         SyncStep = "PULL_REMOTE"
	SyncStepIntegrate          SyncStep = "INTEGRATE"
)

// SyncSteps in the order a cycle runs them
var SyncSteps = []SyncStep{
	SyncStepPrepareInitial,
	SyncStepPush,
	SyncStepWaitForIntegration,
	SyncStepPullCentral,
	SyncStepPullRemote,
	SyncStepIntegrate,
}

// SyncStepProgress holds timestamps and counters for one step
type SyncStepProgress struct {
	StartedDatetime  *time.Time `json:"startedDatetime,omitempty"`
	FinishedDatetime *time.Time `json:"finishedDatetime,omitempty"`
	Total            *int64     `json:"total,omitempty"`
	Done             *int64     `json:"done,omitempty"`
}

// SyncErrorCode classifies the terminal error of a sync cycle
type SyncErrorCode string

const (
	SyncErrorConnection            SyncErrorCode = "connection"
	SyncErrorAuthentication        SyncErrorCode = "authentication"
	SyncErrorVersionMismatch       SyncErrorCode = "version_mismatch"
	SyncErrorIntegrationInProgress SyncErrorCode = "integration_in_progress"
	SyncErrorPushRejected          SyncErrorCode = "push_rejected"
	SyncErrorIntegration           SyncErrorCode = "integration"
	SyncErrorServer                SyncErrorCode = "server"
	SyncErrorUnknown               SyncErrorCode = "unknown"
)

// SyncLog records one sync cycle. Rows are never deleted by sync itself.
type SyncLog struct {
	ID                 string           `json:"id"`
	StartedDatetime    time.Time        `json:"startedDatetime"`
	FinishedDatetime   *time.Time       `json:"finishedDatetime,omitempty"`
	PrepareInitial     SyncStepProgress `json:"prepareInitial"`
	Push               SyncStepProgress `json:"push"`
	WaitForIntegration SyncStepProgress `json:"waitForIntegration"`
	PullCentral        SyncStepProgress `json:"pullCentral"`
	PullRemote         SyncStepProgress `json:"pullRemote"`
	Integration        SyncStepProgress `json:"integration"`
	ErrorMessage       *string          `json:"errorMessage,omitempty"`
	ErrorCode          *SyncErrorCode   `json:"errorCode,omitempty"`
}

// NewSyncLog creates a log row for a cycle starting now
func NewSyncLog(now time.Time) *SyncLog {
	return &SyncLog{
		ID:              uuid.New().String(),
		StartedDatetime: now.UTC(),
	}
}

// Progress returns the progress record for a step, or nil for IDLE
func (l *SyncLog) Progress(step SyncStep) *SyncStepProgress {
	switch step {
	case SyncStepPrepareInitial:
		return &l.PrepareInitial
	case SyncStepPush:
		return &l.Push
	case SyncStepWaitForIntegration:
		return &l.WaitForIntegration
	case SyncStepPullCentral:
		return &l.PullCentral
	case SyncStepPullRemote:
		return &l.PullRemote
	case SyncStepIntegrate:
		return &l.Integration
	default:
		return nil
	}
}

// CurrentStep returns the step that started most recently and has not finished
func (l *SyncLog) CurrentStep() SyncStep {
	if l.FinishedDatetime != nil {
		return SyncStepIdle
	}
	current := SyncStepIdle
	for _, step := range SyncSteps {
		p := l.Progress(step)
		if p.StartedDatetime != nil && p.FinishedDatetime == nil {
			current = step
		}
	}
	return current
}

// IsRunning returns true while the cycle has not finished
func (l *SyncLog) IsRunning() bool {
	return l.FinishedDatetime == nil
}

// HasError returns true if the cycle ended with an error
func (l *SyncLog) HasError() bool {
	return l.ErrorMessage != nil
}
