package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/defiwizard/pkg/logger"
	"github.com/wyfcoding/defiwizard/pkg/metrics"
)

// Handle 一次证明任务的句柄
type Handle struct {
	sessionID  string
	generation uint64
	done       chan struct{}
	result     Result
	err        error
}

// SessionID 所属会话
func (h *Handle) SessionID() string { return h.sessionID }

// Done 任务结束时关闭
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait 等待任务结束；失败时返回 *AttestationFailedError，ctx 结束不影响任务本身
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return Result{Status: StatusRunning}, ctx.Err()
	}
}

type task struct {
	handle *Handle
	status Status
	result Result
}

// Runner 单飞证明执行器
// 任务在脱离请求取消的 goroutine 中运行，核心不设超时；超时由 Attestor 包装器负责
type Runner struct {
	attestor Attestor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	gen   uint64
	tasks map[string]*task
	wg    sync.WaitGroup
}

// RunnerOption 配置项
type RunnerOption func(*Runner)

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner 创建执行器
func NewRunner(attestor Attestor, opts ...RunnerOption) *Runner {
	r := &Runner{
		attestor: attestor,
		logger:   slog.Default(),
		now:      time.Now,
		tasks:    make(map[string]*task),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("module", "attestation_runner")
	return r
}

// Start 为会话启动证明；已有在途任务时返回 ErrAttestationAlreadyInProgress
// 失败后可再次调用重试
func (r *Runner) Start(ctx context.Context, sessionID string) (*Handle, error) {
	r.mu.Lock()
	if t, ok := r.tasks[sessionID]; ok && t.status == StatusRunning {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s", ErrAttestationAlreadyInProgress, sessionID)
	}
	r.gen++
	h := &Handle{sessionID: sessionID, generation: r.gen, done: make(chan struct{})}
	r.tasks[sessionID] = &task{handle: h, status: StatusRunning}
	r.wg.Add(1)
	r.mu.Unlock()

	runCtx := logger.ContextWithSessionID(context.WithoutCancel(ctx), sessionID)
	logger.FromContext(runCtx, r.logger).InfoContext(runCtx, "attestation started", "generation", h.generation)

	go r.run(runCtx, h)
	return h, nil
}

func (r *Runner) run(ctx context.Context, h *Handle) {
	defer r.wg.Done()
	start := r.now()

	proof, err := r.attest(ctx, h.sessionID)

	res := Result{Duration: r.now().Sub(start)}
	if err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		h.err = &AttestationFailedError{SessionID: h.sessionID, Reason: res.Reason, Cause: err}
	} else {
		res.Status = StatusSucceeded
		res.Proof = &proof
	}
	h.result = res
	defer close(h.done)

	r.mu.Lock()
	t, ok := r.tasks[h.sessionID]
	current := ok && t.handle == h
	if current {
		t.status = res.Status
		t.result = res
	}
	r.mu.Unlock()

	log := logger.FromContext(ctx, r.logger)
	if !current {
		log.InfoContext(ctx, "attestation result discarded", "generation", h.generation, "status", res.Status)
		return
	}
	r.metrics.RecordAttestation(string(res.Status), res.Duration)
	if err != nil {
		log.WarnContext(ctx, "attestation failed", "reason", res.Reason, "duration", res.Duration)
		return
	}
	log.InfoContext(ctx, "attestation succeeded", "duration", res.Duration)
}

func (r *Runner) attest(ctx context.Context, sessionID string) (proof Proof, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("attestor panicked: %v", p)
		}
	}()
	return r.attestor.Attest(ctx, sessionID)
}

// Status 会话当前证明状态
func (r *Runner) Status(sessionID string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[sessionID]; ok {
		return t.status
	}
	return StatusIdle
}

// Result 最近一次已完成且未被重置的结果
func (r *Runner) Result(sessionID string) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[sessionID]
	if !ok || t.status == StatusRunning {
		return Result{}, false
	}
	return t.result, true
}

// Handle 在途或最近一次任务的句柄
func (r *Runner) Handle(sessionID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[sessionID]
	if !ok {
		return nil, false
	}
	return t.handle, true
}

// Reset 丢弃会话的证明状态；在途任务继续运行，但其结果不再生效
func (r *Runner) Reset(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, sessionID)
}

// Shutdown 等待所有在途任务结束或 ctx 到期
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
