package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStepNotComplete     = errors.New("step not complete")
	ErrStepNotActive       = errors.New("step not active")
	ErrSessionClosed       = errors.New("session closed")
	ErrSessionNotFound     = errors.New("session not found")
	ErrConfirmRequired     = errors.New("confirm step must be completed with confirm")
	ErrAttestationRequired = errors.New("attestation has not succeeded")
	ErrUnknownFlow         = errors.New("unknown flow")
	ErrNoPreviousStep      = errors.New("no previous step")
	ErrNoNextStep          = errors.New("no next step")
	ErrUnknownStep         = errors.New("unknown step")
	ErrInvalidSteps        = errors.New("invalid step list")
	ErrSubmitFailed        = errors.New("submit failed")
)

// StepNotCompleteError 当前步骤完成条件未满足，Reason 为界面可直接展示的阻断原因
type StepNotCompleteError struct {
	Step   StepID
	Reason string
	Cause  error
}

func (e *StepNotCompleteError) Error() string {
	return fmt.Sprintf("step %s not complete: %s", e.Step, e.Reason)
}

func (e *StepNotCompleteError) Is(target error) bool { return target == ErrStepNotComplete }

func (e *StepNotCompleteError) Unwrap() error { return e.Cause }

func notComplete(reason string, cause error) error {
	return &StepNotCompleteError{Reason: reason, Cause: cause}
}
