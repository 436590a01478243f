package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedAttestor 在 release 关闭前阻塞，按调用顺序返回预设错误
type gatedAttestor struct {
	mu      sync.Mutex
	calls   int
	errs    []error
	release chan struct{}
	ctxErrs []error
}

func newGatedAttestor(errs ...error) *gatedAttestor {
	return &gatedAttestor{errs: errs, release: make(chan struct{})}
}

func (a *gatedAttestor) Attest(ctx context.Context, sessionID string) (Proof, error) {
	a.mu.Lock()
	n := a.calls
	a.calls++
	a.mu.Unlock()

	<-a.release

	a.mu.Lock()
	a.ctxErrs = append(a.ctxErrs, ctx.Err())
	a.mu.Unlock()

	if n < len(a.errs) && a.errs[n] != nil {
		return Proof{}, a.errs[n]
	}
	return Proof{SessionID: sessionID, Backend: "test", Digest: "d"}, nil
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRunnerSingleFlight(t *testing.T) {
	att := newGatedAttestor()
	r := NewRunner(att)

	h, err := r.Start(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, r.Status("s1"))

	_, err = r.Start(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrAttestationAlreadyInProgress)

	other, err := r.Start(context.Background(), "s2")
	require.NoError(t, err, "sessions are independent")

	close(att.release)
	res, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	require.NotNil(t, res.Proof)
	assert.Equal(t, "s1", res.Proof.SessionID)
	assert.Equal(t, StatusSucceeded, r.Status("s1"))

	_, err = other.Wait(waitCtx(t))
	require.NoError(t, err)

	stored, ok := r.Result("s1")
	require.True(t, ok)
	assert.Equal(t, StatusSucceeded, stored.Status)
}

func TestRunnerFailureThenExplicitRetry(t *testing.T) {
	att := newGatedAttestor(errors.New("prover unavailable"))
	close(att.release)
	r := NewRunner(att)

	h, err := r.Start(context.Background(), "s1")
	require.NoError(t, err)
	res, err := h.Wait(waitCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttestationFailed)

	var failed *AttestationFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "prover unavailable", failed.Reason)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StatusFailed, r.Status("s1"))

	h, err = r.Start(context.Background(), "s1")
	require.NoError(t, err)
	res, err = h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, 2, att.calls)
}

func TestRunnerDetachedFromRequestCancellation(t *testing.T) {
	att := newGatedAttestor()
	r := NewRunner(att)

	reqCtx, cancel := context.WithCancel(context.Background())
	h, err := r.Start(reqCtx, "s1")
	require.NoError(t, err)
	cancel()

	close(att.release)
	res, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, []error{nil}, att.ctxErrs)
}

func TestRunnerResetDiscardsInFlightResult(t *testing.T) {
	att := newGatedAttestor()
	r := NewRunner(att)

	h, err := r.Start(context.Background(), "s1")
	require.NoError(t, err)
	r.Reset("s1")
	assert.Equal(t, StatusIdle, r.Status("s1"))

	close(att.release)
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("attestation never finished")
	}

	assert.Equal(t, StatusIdle, r.Status("s1"))
	_, ok := r.Result("s1")
	assert.False(t, ok)
	require.NoError(t, r.Shutdown(waitCtx(t)))
}

func TestRunnerRecoversAttestorPanic(t *testing.T) {
	r := NewRunner(AttestorFunc(func(ctx context.Context, sessionID string) (Proof, error) {
		panic("nil backend")
	}))

	h, err := r.Start(context.Background(), "s1")
	require.NoError(t, err)
	_, err = h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrAttestationFailed)
	assert.ErrorContains(t, err, "attestor panicked")
}

func TestHandleWaitHonoursCallerContext(t *testing.T) {
	att := newGatedAttestor()
	r := NewRunner(att)
	h, err := r.Start(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusRunning, res.Status)
	assert.Equal(t, StatusRunning, r.Status("s1"))

	close(att.release)
	require.NoError(t, r.Shutdown(waitCtx(t)))
}
