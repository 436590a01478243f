package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/defiwizard/internal/attestation/domain"
)

// ErrBackendUnavailable 远程证明服务熔断或返回 5xx
var ErrBackendUnavailable = errors.New("attestation backend unavailable")

// RemoteConfig 远程证明服务配置
type RemoteConfig struct {
	Endpoint           string
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

type attestRequest struct {
	SessionID string `json:"session_id"`
}

type attestResponse struct {
	Verified bool      `json:"verified"`
	Digest   string    `json:"digest"`
	Reason   string    `json:"reason"`
	IssuedAt time.Time `json:"issued_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RemoteAttestor 通过 HTTP 调用外部证明服务，连续失败后熔断
type RemoteAttestor struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRemoteAttestor 创建远程证明客户端
func NewRemoteAttestor(cfg RemoteConfig, logger *slog.Logger) *RemoteAttestor {
	logger = logger.With("module", "remote_attestor")
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return &RemoteAttestor{
		client: resty.New().
			SetBaseURL(cfg.Endpoint).
			SetHeader("Content-Type", "application/json"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "attestation-backend",
			Timeout: cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				// 业务拒绝不计入熔断
				return err == nil || !errors.Is(err, ErrBackendUnavailable)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

func (a *RemoteAttestor) Attest(ctx context.Context, sessionID string) (domain.Proof, error) {
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.call(ctx, sessionID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.Proof{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err != nil {
		return domain.Proof{}, err
	}
	return out.(domain.Proof), nil
}

func (a *RemoteAttestor) call(ctx context.Context, sessionID string) (domain.Proof, error) {
	var body attestResponse
	var errBody errorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(attestRequest{SessionID: sessionID}).
		SetResult(&body).
		SetError(&errBody).
		Post("/v1/attestations")
	if err != nil {
		return domain.Proof{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		return domain.Proof{}, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode())
	}
	if resp.IsError() {
		reason := errBody.Error
		if reason == "" {
			reason = resp.Status()
		}
		return domain.Proof{}, fmt.Errorf("attestation rejected: %s", reason)
	}
	if !body.Verified {
		reason := body.Reason
		if reason == "" {
			reason = "proof not verified"
		}
		return domain.Proof{}, errors.New(reason)
	}
	issued := body.IssuedAt
	if issued.IsZero() {
		issued = time.Now().UTC()
	}
	return domain.Proof{SessionID: sessionID, Backend: "remote", Digest: body.Digest, IssuedAt: issued}, nil
}
