// Package application 向导应用服务：会话注册表、并发串行化与读模型
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
	"github.com/wyfcoding/defiwizard/internal/wizard/domain"
	"github.com/wyfcoding/defiwizard/pkg/logger"
	"github.com/wyfcoding/defiwizard/pkg/metrics"
)

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.Session
}

// WizardService 管理内存中的向导会话
// 每个会话一把锁，HTTP 并发请求在会话粒度串行执行
type WizardService struct {
	pools      catalog.PoolRepository
	holdings   catalog.HoldingRepository
	runner     *attestation.Runner
	submitter  domain.Submitter
	thresholds risk.Thresholds

	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	newID      func() string
	sessionTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// Option 配置项
type Option func(*WizardService)

func WithLogger(l *slog.Logger) Option {
	return func(s *WizardService) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *WizardService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *WizardService) { s.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(s *WizardService) { s.newID = f }
}

// WithSessionTTL 会话最后一次更新后保留的时长
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *WizardService) { s.sessionTTL = ttl }
}

// NewWizardService 创建向导服务
func NewWizardService(
	pools catalog.PoolRepository,
	holdings catalog.HoldingRepository,
	runner *attestation.Runner,
	submitter domain.Submitter,
	thresholds risk.Thresholds,
	opts ...Option,
) *WizardService {
	s := &WizardService{
		pools:      pools,
		holdings:   holdings,
		runner:     runner,
		submitter:  submitter,
		thresholds: thresholds,
		logger:     slog.Default(),
		now:        time.Now,
		newID:      uuid.NewString,
		sessionTTL: 15 * time.Minute,
		sessions:   make(map[string]*sessionEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "wizard_service")
	return s
}

// StartSession 按流程创建会话，并在此刻固定目录快照
func (s *WizardService) StartSession(ctx context.Context, cmd StartSessionCommand) (*SessionDTO, error) {
	flow, err := domain.ParseFlow(cmd.Flow)
	if err != nil {
		return nil, err
	}
	snap, err := catalog.LoadSnapshot(ctx, s.pools, s.holdings, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	id := s.newID()
	sess, err := domain.NewSession(id, flow, snap, s.thresholds, s.runner, domain.WithSessionClock(s.now))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = &sessionEntry{session: sess}
	active := len(s.sessions)
	s.mu.Unlock()

	s.metrics.RecordSessionStarted(string(flow))
	s.metrics.SetActiveSessions(active)
	s.log(ctx, id).InfoContext(ctx, "wizard session started", "flow", flow, "account_id", cmd.AccountID, "pools", len(snap.Pools()))
	return toSessionDTO(sess, s.runner), nil
}

// GetSession 查询会话，派生风险每次重新计算
func (s *WizardService) GetSession(ctx context.Context, id string) (*SessionDTO, error) {
	var dto *SessionDTO
	err := s.withSession(id, func(sess *domain.Session) error {
		dto = toSessionDTO(sess, s.runner)
		return nil
	})
	return dto, err
}

// SelectAsset 选择流程资产
func (s *WizardService) SelectAsset(ctx context.Context, cmd SelectAssetCommand) (*SessionDTO, error) {
	return s.mutate(ctx, cmd.SessionID, "select_asset", func(sess *domain.Session) error {
		return sess.SelectAsset(cmd.AssetID)
	})
}

// SelectCollateral 选择抵押品
func (s *WizardService) SelectCollateral(ctx context.Context, cmd SelectCollateralCommand) (*SessionDTO, error) {
	qty, err := risk.ParseQuantity(cmd.Quantity)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.SessionID, "select_collateral", func(sess *domain.Session) error {
		return sess.SelectCollateral(cmd.AssetID, qty)
	})
}

// EnterAmount 录入数量与期限
func (s *WizardService) EnterAmount(ctx context.Context, cmd EnterAmountCommand) (*SessionDTO, error) {
	qty, err := risk.ParseQuantity(cmd.Quantity)
	if err != nil {
		return nil, err
	}
	duration, err := risk.ParseDurationClass(cmd.Duration)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.SessionID, "enter_amount", func(sess *domain.Session) error {
		return sess.EnterAmount(qty, duration)
	})
}

// Advance 前进一步
func (s *WizardService) Advance(ctx context.Context, id string) (*TransitionDTO, error) {
	return s.transition(ctx, id, "advance", (*domain.Session).Advance)
}

// Back 后退一步
func (s *WizardService) Back(ctx context.Context, id string) (*TransitionDTO, error) {
	return s.transition(ctx, id, "back", (*domain.Session).Back)
}

// Cancel 取消会话
func (s *WizardService) Cancel(ctx context.Context, id string) (*SessionDTO, error) {
	dto, err := s.mutate(ctx, id, "cancel", (*domain.Session).Cancel)
	if err == nil {
		s.metrics.RecordOutcome(string(dto.Flow), string(domain.OutcomeCancelled))
	}
	return dto, err
}

// StartAttestation 启动证明，立即返回；结果通过 AttestationStatus/AwaitAttestation 获取
func (s *WizardService) StartAttestation(ctx context.Context, id string) (*SessionDTO, error) {
	return s.mutate(ctx, id, "start_attestation", func(sess *domain.Session) error {
		_, err := sess.StartAttestation(ctx)
		return err
	})
}

// AttestationStatus 查询证明状态
func (s *WizardService) AttestationStatus(ctx context.Context, id string) (*AttestationDTO, error) {
	var dto AttestationDTO
	err := s.withSession(id, func(sess *domain.Session) error {
		res, ok := s.runner.Result(id)
		dto = toAttestationDTO(s.runner.Status(id), res, ok)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

// AwaitAttestation 等待在途证明结束或 ctx 到期，不持有会话锁
func (s *WizardService) AwaitAttestation(ctx context.Context, id string) (*AttestationDTO, error) {
	var handle *attestation.Handle
	err := s.withSession(id, func(sess *domain.Session) error {
		if s.runner.Status(id) == attestation.StatusRunning {
			handle, _ = s.runner.Handle(id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if handle != nil {
		if _, err := handle.Wait(ctx); err != nil && ctx.Err() != nil {
			return &AttestationDTO{Status: attestation.StatusRunning}, nil
		}
	}
	return s.AttestationStatus(ctx, id)
}

// Confirm 执行最终操作
func (s *WizardService) Confirm(ctx context.Context, id string) (*ConfirmDTO, error) {
	ctx = logger.ContextWithSessionID(ctx, id)
	var out *ConfirmDTO
	err := s.withSession(id, func(sess *domain.Session) error {
		sub, err := sess.Confirm(ctx, s.submitter)
		s.metrics.RecordTransition("confirm", err)
		if errors.Is(err, domain.ErrSubmitFailed) {
			s.metrics.RecordSubmit(err)
			s.metrics.RecordOutcome(string(sess.Flow), string(domain.OutcomeFailed))
			s.log(ctx, id).ErrorContext(ctx, "wizard submit failed", "flow", sess.Flow, "error", err)
			return err
		}
		if err != nil {
			s.log(ctx, id).WarnContext(ctx, "wizard confirm rejected", "step", sess.Step(), "error", err)
			return err
		}
		s.metrics.RecordSubmit(nil)
		s.metrics.RecordOutcome(string(sess.Flow), string(domain.OutcomeSucceeded))
		s.log(ctx, id).InfoContext(ctx, "wizard session confirmed", "flow", sess.Flow)
		out = &ConfirmDTO{Submission: sub, Session: toSessionDTO(sess, s.runner)}
		return nil
	})
	return out, err
}

// Sweep 清理超过 TTL 未更新的会话；未结束的会话先取消，证明在途的会话不清理
func (s *WizardService) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.sessionTTL)

	s.mu.RLock()
	candidates := make([]string, 0)
	for id, e := range s.sessions {
		e.mu.Lock()
		if s.expired(id, e.session, cutoff) {
			candidates = append(candidates, id)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	evicted := 0
	for _, id := range candidates {
		s.mu.Lock()
		e, ok := s.sessions[id]
		if !ok {
			s.mu.Unlock()
			continue
		}
		e.mu.Lock()
		if !s.expired(id, e.session, cutoff) {
			e.mu.Unlock()
			s.mu.Unlock()
			continue
		}
		if !e.session.Closed() {
			if err := e.session.Cancel(); err == nil {
				s.metrics.RecordOutcome(string(e.session.Flow), string(domain.OutcomeCancelled))
			}
		}
		s.runner.Reset(id)
		delete(s.sessions, id)
		e.mu.Unlock()
		s.mu.Unlock()
		evicted++
		s.log(ctx, id).InfoContext(ctx, "wizard session evicted")
	}

	s.mu.RLock()
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.RUnlock()
	return evicted
}

func (s *WizardService) expired(id string, sess *domain.Session, cutoff time.Time) bool {
	return sess.UpdatedAt.Before(cutoff) && s.runner.Status(id) != attestation.StatusRunning
}

// Run 周期性清理过期会话，直到 ctx 结束
func (s *WizardService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				s.logger.DebugContext(ctx, "session sweep finished", "evicted", n)
			}
		}
	}
}

// ActiveSessions 内存中的会话数
func (s *WizardService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *WizardService) transition(ctx context.Context, id, op string, fn func(*domain.Session) (domain.Transition, error)) (*TransitionDTO, error) {
	ctx = logger.ContextWithSessionID(ctx, id)
	var out *TransitionDTO
	err := s.withSession(id, func(sess *domain.Session) error {
		t, err := fn(sess)
		s.metrics.RecordTransition(op, err)
		if err != nil {
			s.log(ctx, id).InfoContext(ctx, "wizard transition rejected", "op", op, "step", sess.Step(), "reason", err.Error())
			return err
		}
		s.log(ctx, id).DebugContext(ctx, "wizard transition", "op", op, "from", t.From, "to", t.To)
		out = &TransitionDTO{Transition: t, Session: toSessionDTO(sess, s.runner)}
		return nil
	})
	return out, err
}

func (s *WizardService) mutate(ctx context.Context, id, op string, fn func(*domain.Session) error) (*SessionDTO, error) {
	ctx = logger.ContextWithSessionID(ctx, id)
	var dto *SessionDTO
	err := s.withSession(id, func(sess *domain.Session) error {
		err := fn(sess)
		s.metrics.RecordTransition(op, err)
		if err != nil {
			s.log(ctx, id).InfoContext(ctx, "wizard operation rejected", "op", op, "step", sess.Step(), "reason", err.Error())
			return err
		}
		dto = toSessionDTO(sess, s.runner)
		return nil
	})
	return dto, err
}

func (s *WizardService) withSession(id string, fn func(*domain.Session) error) error {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

func (s *WizardService) log(ctx context.Context, id string) *slog.Logger {
	return logger.FromContext(logger.ContextWithSessionID(ctx, id), s.logger)
}
