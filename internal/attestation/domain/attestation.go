// Package domain 证明任务：每个向导会话至多一个在途的异步证明，结果为成功或失败
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAttestationAlreadyInProgress = errors.New("attestation already in progress")
	ErrAttestationFailed            = errors.New("attestation failed")
)

// Status 证明任务状态
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Proof 证明后端返回的凭据
type Proof struct {
	SessionID string    `json:"session_id"`
	Backend   string    `json:"backend"`
	Digest    string    `json:"digest"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Result 一次证明任务的终态
type Result struct {
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Proof    *Proof        `json:"proof,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Attestor 外部证明后端
type Attestor interface {
	Attest(ctx context.Context, sessionID string) (Proof, error)
}

// AttestorFunc 函数适配器
type AttestorFunc func(ctx context.Context, sessionID string) (Proof, error)

func (f AttestorFunc) Attest(ctx context.Context, sessionID string) (Proof, error) {
	return f(ctx, sessionID)
}

// AttestationFailedError 证明失败，Reason 供界面展示
type AttestationFailedError struct {
	SessionID string
	Reason    string
	Cause     error
}

func (e *AttestationFailedError) Error() string {
	return fmt.Sprintf("attestation failed for session %s: %s", e.SessionID, e.Reason)
}

func (e *AttestationFailedError) Is(target error) bool { return target == ErrAttestationFailed }

func (e *AttestationFailedError) Unwrap() error { return e.Cause }
