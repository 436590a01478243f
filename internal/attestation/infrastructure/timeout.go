package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/defiwizard/internal/attestation/domain"
)

// ErrAttestationTimeout 调用方超时
var ErrAttestationTimeout = errors.New("attestation timed out")

type timeoutAttestor struct {
	next    domain.Attestor
	timeout time.Duration
}

// WithTimeout 为证明后端附加调用方超时，timeout <= 0 时原样返回
func WithTimeout(next domain.Attestor, timeout time.Duration) domain.Attestor {
	if timeout <= 0 {
		return next
	}
	return &timeoutAttestor{next: next, timeout: timeout}
}

func (a *timeoutAttestor) Attest(ctx context.Context, sessionID string) (domain.Proof, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	proof, err := a.next.Attest(ctx, sessionID)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Proof{}, fmt.Errorf("%w after %s", ErrAttestationTimeout, a.timeout)
	}
	return proof, err
}
