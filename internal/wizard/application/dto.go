package application

import (
	"errors"

	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
	"github.com/wyfcoding/defiwizard/internal/wizard/domain"
)

// StartSessionCommand 开始流程
type StartSessionCommand struct {
	Flow      string
	AccountID string
}

// SelectAssetCommand 选择资产
type SelectAssetCommand struct {
	SessionID string
	AssetID   string
}

// SelectCollateralCommand 选择抵押品
type SelectCollateralCommand struct {
	SessionID string
	AssetID   string
	Quantity  string
}

// EnterAmountCommand 录入数量与期限
type EnterAmountCommand struct {
	SessionID string
	Quantity  string
	Duration  string
}

// AttestationDTO 证明状态
type AttestationDTO struct {
	Status     attestation.Status `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	Proof      *attestation.Proof `json:"proof,omitempty"`
	DurationMs int64              `json:"duration_ms,omitempty"`
}

// SessionDTO 会话读模型
type SessionDTO struct {
	ID                  string              `json:"id"`
	Flow                domain.Flow         `json:"flow"`
	AccountID           string              `json:"account_id,omitempty"`
	Step                domain.StepID       `json:"step"`
	Steps               []domain.StepID     `json:"steps"`
	Outcome             domain.Outcome      `json:"outcome"`
	FailureReason       string              `json:"failure_reason,omitempty"`
	Position            risk.Position       `json:"position"`
	Risk                *risk.DerivedRisk   `json:"risk,omitempty"`
	Undercollateralized bool                `json:"undercollateralized,omitempty"`
	StepBlocker         string              `json:"step_blocker,omitempty"`
	Attestation         AttestationDTO      `json:"attestation"`
	History             []domain.Transition `json:"history"`
	CreatedAt           int64               `json:"created_at"`
	UpdatedAt           int64               `json:"updated_at"`
}

// TransitionDTO 迁移结果与迁移后的会话
type TransitionDTO struct {
	Transition domain.Transition `json:"transition"`
	Session    *SessionDTO       `json:"session"`
}

// ConfirmDTO confirm 结果
type ConfirmDTO struct {
	Submission *domain.Submission `json:"submission"`
	Session    *SessionDTO        `json:"session"`
}

func toAttestationDTO(status attestation.Status, res attestation.Result, ok bool) AttestationDTO {
	dto := AttestationDTO{Status: status}
	if ok {
		dto.Reason = res.Reason
		dto.Proof = res.Proof
		dto.DurationMs = res.Duration.Milliseconds()
	}
	return dto
}

func toSessionDTO(s *domain.Session, runner *attestation.Runner) *SessionDTO {
	res, ok := runner.Result(s.ID)
	dto := &SessionDTO{
		ID:            s.ID,
		Flow:          s.Flow,
		AccountID:     s.AccountID,
		Step:          s.Step(),
		Steps:         s.Steps(),
		Outcome:       s.Outcome(),
		FailureReason: s.FailureReason(),
		Position:      s.Position(),
		Attestation:   toAttestationDTO(runner.Status(s.ID), res, ok),
		History:       s.History(),
		CreatedAt:     s.CreatedAt.Unix(),
		UpdatedAt:     s.UpdatedAt.Unix(),
	}
	if !dto.Position.IsEmpty() {
		dr, err := s.Risk()
		if err == nil || errors.Is(err, risk.ErrUndercollateralized) {
			display := dr.Display()
			dto.Risk = &display
			dto.Undercollateralized = err != nil
		}
	}
	if !s.Closed() {
		var snc *domain.StepNotCompleteError
		if err := s.CheckStep(); errors.As(err, &snc) {
			dto.StepBlocker = snc.Reason
		}
	}
	return dto
}
