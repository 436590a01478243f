// Package infrastructure 证明后端实现：本地模拟、远程 HTTP（带熔断）与调用方超时包装
package infrastructure

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/wyfcoding/defiwizard/internal/attestation/domain"
	"lukechampine.com/blake3"
)

// ErrSimulatedRejection 模拟后端按失败概率拒绝
var ErrSimulatedRejection = errors.New("proof rejected by verifier")

// SimulatedAttestor 无真实密码学的模拟证明后端，摘要为会话 ID 与时间戳的 blake3
type SimulatedAttestor struct {
	latency     time.Duration
	failureRate float64
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedAttestor failureRate 取值 [0,1]，seed 固定时失败序列可复现
func NewSimulatedAttestor(latency time.Duration, failureRate float64, seed uint64) *SimulatedAttestor {
	return &SimulatedAttestor{
		latency:     latency,
		failureRate: failureRate,
		now:         time.Now,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (a *SimulatedAttestor) Attest(ctx context.Context, sessionID string) (domain.Proof, error) {
	if a.latency > 0 {
		timer := time.NewTimer(a.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.Proof{}, ctx.Err()
		}
	}

	a.mu.Lock()
	roll := a.rng.Float64()
	a.mu.Unlock()
	if roll < a.failureRate {
		return domain.Proof{}, ErrSimulatedRejection
	}

	issued := a.now().UTC()
	return domain.Proof{
		SessionID: sessionID,
		Backend:   "simulated",
		Digest:    digest(sessionID, issued),
		IssuedAt:  issued,
	}, nil
}

func digest(sessionID string, issued time.Time) string {
	buf := make([]byte, 0, len(sessionID)+8)
	buf = append(buf, sessionID...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(issued.UnixNano()))
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
