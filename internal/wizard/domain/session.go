package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
)

// Outcome 会话结果
type Outcome string

const (
	OutcomeInProgress Outcome = "IN_PROGRESS"
	OutcomeSucceeded  Outcome = "SUCCEEDED"
	OutcomeFailed     Outcome = "FAILED"
	OutcomeCancelled  Outcome = "CANCELLED"
)

// AttestationGate 会话可见的证明执行器操作
type AttestationGate interface {
	Start(ctx context.Context, sessionID string) (*attestation.Handle, error)
	Status(sessionID string) attestation.Status
	Result(sessionID string) (attestation.Result, bool)
	Reset(sessionID string)
}

// Submission confirm 时交给提交钩子的最终操作
type Submission struct {
	SessionID   string             `json:"session_id"`
	Flow        Flow               `json:"flow"`
	AccountID   string             `json:"account_id,omitempty"`
	Position    risk.Position      `json:"position"`
	Risk        risk.DerivedRisk   `json:"risk"`
	Proof       *attestation.Proof `json:"proof,omitempty"`
	ConfirmedAt time.Time          `json:"confirmed_at"`
}

// Submitter 最终操作的提交钩子
type Submitter interface {
	Submit(ctx context.Context, sub *Submission) error
}

// Transition 一次成功的状态迁移
type Transition struct {
	Op       string         `json:"op"`
	From     StepID         `json:"from"`
	To       StepID         `json:"to"`
	At       time.Time      `json:"at"`
	Warnings []risk.Warning `json:"warnings,omitempty"`
}

// Session 向导会话聚合根
// 单一所有者，不做内部加锁；并发调用方需在应用层串行化
type Session struct {
	ID        string
	Flow      Flow
	AccountID string
	CreatedAt time.Time
	UpdatedAt time.Time

	machine       *Machine[*Session]
	step          StepID
	position      risk.Position
	outcome       Outcome
	failureReason string
	snapshot      *catalog.Snapshot
	thresholds    risk.Thresholds
	gate          AttestationGate
	history       []Transition
	now           func() time.Time
}

// SessionOption 会话配置项
type SessionOption func(*Session)

// WithSessionClock 注入时钟
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession 创建会话，初始步骤为流程第一步
func NewSession(id string, flow Flow, snapshot *catalog.Snapshot, thresholds risk.Thresholds, gate AttestationGate, opts ...SessionOption) (*Session, error) {
	m, ok := machines[flow]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	if snapshot == nil {
		return nil, fmt.Errorf("session %s: nil catalog snapshot", id)
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		ID:         id,
		Flow:       flow,
		AccountID:  snapshot.AccountID,
		machine:    m,
		step:       m.Initial(),
		outcome:    OutcomeInProgress,
		snapshot:   snapshot,
		thresholds: thresholds,
		gate:       gate,
		now:        time.Now,
	}
	s.position.Reset()
	for _, opt := range opts {
		opt(s)
	}
	s.CreatedAt = s.now()
	s.UpdatedAt = s.CreatedAt
	return s, nil
}

func (s *Session) Step() StepID          { return s.step }
func (s *Session) Steps() []StepID       { return s.machine.Steps() }
func (s *Session) Outcome() Outcome      { return s.outcome }
func (s *Session) FailureReason() string { return s.failureReason }
func (s *Session) Position() risk.Position {
	return s.position.Clone()
}

// History 迁移记录副本
func (s *Session) History() []Transition {
	return append([]Transition(nil), s.history...)
}

// Closed 是否处于终态
func (s *Session) Closed() bool { return s.outcome != OutcomeInProgress }

// AttestationStatus 本会话证明状态
func (s *Session) AttestationStatus() attestation.Status {
	return s.gate.Status(s.ID)
}

// Risk 按快照重新计算派生风险
func (s *Session) Risk() (risk.DerivedRisk, error) {
	in := risk.DeriveInput{IsDebt: s.Flow.IsDebt(), Duration: s.position.DurationClass}
	if p := s.position.Principal; p != nil {
		pool, err := s.snapshot.Pool(p.AssetID)
		if err != nil {
			return risk.DerivedRisk{}, err
		}
		in.Principal = &risk.Valuation{Amount: *p, UnitValue: pool.UnitValue, Params: pool.RiskParameters()}
		if available, bounded := s.available(pool); bounded {
			in.Available = available
		}
	}
	if c := s.position.Collateral; c != nil {
		pool, err := s.snapshot.Pool(c.AssetID)
		if err != nil {
			return risk.DerivedRisk{}, err
		}
		in.Collateral = &risk.Valuation{Amount: *c, UnitValue: pool.UnitValue, Params: pool.RiskParameters()}
	}
	return risk.Derive(in, s.thresholds)
}

// CheckStep 评估当前步骤完成条件，不产生迁移
func (s *Session) CheckStep() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.machine.Check(s, s.step)
}

// Advance 当前步骤完成条件满足时前进一步
// Confirm 步骤只能通过 Confirm 完成
func (s *Session) Advance() (Transition, error) {
	if err := s.ensureOpen(); err != nil {
		return Transition{}, err
	}
	if s.step == StepConfirm {
		return Transition{}, ErrConfirmRequired
	}
	next, err := s.machine.Next(s, s.step)
	if err != nil {
		return Transition{}, err
	}
	t := s.record("advance", next)
	if t.From == StepEnterAmount {
		if dr, err := s.Risk(); err == nil {
			t.Warnings = dr.Warnings
			s.history[len(s.history)-1].Warnings = dr.Warnings
		}
	}
	return t, nil
}

// Back 回到上一步骤，已录入数据保留；证明进行中不可回退
func (s *Session) Back() (Transition, error) {
	if err := s.ensureOpen(); err != nil {
		return Transition{}, err
	}
	if s.gate.Status(s.ID) == attestation.StatusRunning {
		return Transition{}, fmt.Errorf("%w: cannot leave %s", attestation.ErrAttestationAlreadyInProgress, s.step)
	}
	prev, err := s.machine.Prev(s.step)
	if err != nil {
		return Transition{}, err
	}
	return s.record("back", prev), nil
}

// Cancel 任意非终态可取消：清空仓位、丢弃证明状态
// 在途证明继续运行至结束，但结果不再生效
func (s *Session) Cancel() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.position.Reset()
	s.gate.Reset(s.ID)
	s.outcome = OutcomeCancelled
	s.record("cancel", s.step)
	return nil
}

// StartAttestation 仅在 Attest 步骤启动证明
func (s *Session) StartAttestation(ctx context.Context) (*attestation.Handle, error) {
	if err := s.requireStep(StepAttest); err != nil {
		return nil, err
	}
	h, err := s.gate.Start(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.touch()
	return h, nil
}

// Confirm 证明成功后执行最终操作；提交失败时会话以 Failed 结束
func (s *Session) Confirm(ctx context.Context, submitter Submitter) (*Submission, error) {
	if err := s.requireStep(StepConfirm); err != nil {
		return nil, err
	}
	if s.gate.Status(s.ID) != attestation.StatusSucceeded {
		return nil, ErrAttestationRequired
	}
	dr, err := s.Risk()
	if err != nil {
		return nil, err
	}
	sub := &Submission{
		SessionID:   s.ID,
		Flow:        s.Flow,
		AccountID:   s.AccountID,
		Position:    s.position.Clone(),
		Risk:        dr.Display(),
		ConfirmedAt: s.now(),
	}
	if res, ok := s.gate.Result(s.ID); ok {
		sub.Proof = res.Proof
	}
	if err := submitter.Submit(ctx, sub); err != nil {
		s.outcome = OutcomeFailed
		s.failureReason = err.Error()
		s.touch()
		return nil, fmt.Errorf("%w: session %s: %w", ErrSubmitFailed, s.ID, err)
	}
	s.outcome = OutcomeSucceeded
	s.record("confirm", StepDone)
	return sub, nil
}

// SelectAsset 选择流程资产；更换资产时清零已录入数量
func (s *Session) SelectAsset(assetID string) error {
	if err := s.requireStep(StepSelectAsset); err != nil {
		return err
	}
	if _, err := s.snapshot.Pool(assetID); err != nil {
		return err
	}
	if p := s.position.Principal; p == nil || p.AssetID != assetID {
		s.position.Principal = &risk.AssetAmount{AssetID: assetID, Quantity: decimal.Zero}
	}
	s.discardAttestation()
	return nil
}

// SelectCollateral 选择抵押资产与数量，仅借款流程
func (s *Session) SelectCollateral(assetID string, quantity decimal.Decimal) error {
	if err := s.requireStep(StepSelectCollateral); err != nil {
		return err
	}
	if _, err := s.snapshot.Pool(assetID); err != nil {
		return err
	}
	amt, err := risk.NewAssetAmount(assetID, quantity)
	if err != nil {
		return err
	}
	s.position.Collateral = &amt
	s.discardAttestation()
	return nil
}

// EnterAmount 录入操作数量与期限
func (s *Session) EnterAmount(quantity decimal.Decimal, duration risk.DurationClass) error {
	if err := s.requireStep(StepEnterAmount); err != nil {
		return err
	}
	if s.position.Principal == nil {
		return fmt.Errorf("%w: %s before %s", ErrStepNotActive, ReasonNoAsset, StepEnterAmount)
	}
	amt, err := risk.NewAssetAmount(s.position.Principal.AssetID, quantity)
	if err != nil {
		return err
	}
	if duration == "" {
		duration = risk.DurationFlexible
	}
	s.position.Principal = &amt
	s.position.DurationClass = duration
	s.discardAttestation()
	return nil
}

func (s *Session) ensureOpen() error {
	if s.Closed() {
		return fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.outcome)
	}
	return nil
}

func (s *Session) requireStep(step StepID) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.step != step {
		return fmt.Errorf("%w: %s is not the current step (%s)", ErrStepNotActive, step, s.step)
	}
	return nil
}

// discardAttestation 仓位变化后旧证明作废
func (s *Session) discardAttestation() {
	if s.gate.Status(s.ID) != attestation.StatusIdle {
		s.gate.Reset(s.ID)
	}
	s.touch()
}

func (s *Session) record(op string, to StepID) Transition {
	t := Transition{Op: op, From: s.step, To: to, At: s.now()}
	s.step = to
	s.history = append(s.history, t)
	s.UpdatedAt = t.At
	return t
}

func (s *Session) touch() {
	s.UpdatedAt = s.now()
}
