package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
	"github.com/wyfcoding/defiwizard/internal/wizard/domain"
	"github.com/wyfcoding/defiwizard/pkg/logger"
	"github.com/wyfcoding/defiwizard/pkg/mq"
)

type memWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func submission() *domain.Submission {
	return &domain.Submission{
		SessionID: "sess-1",
		Flow:      domain.FlowLend,
		AccountID: "acct-1",
		Position: risk.Position{
			Principal:     &risk.AssetAmount{AssetID: "USDC", Quantity: decimal.RequireFromString("250")},
			DurationClass: risk.DurationFixed90,
		},
		Proof:       &attestation.Proof{SessionID: "sess-1", Backend: "simulated", Digest: "beef"},
		ConfirmedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestKafkaSubmitterPublishes(t *testing.T) {
	w := &memWriter{}
	s := NewKafkaSubmitter(mq.NewProducerWithWriter(w), "wizard.confirmed", slog.Default())

	ctx := logger.ContextWithRequestID(context.Background(), "req-7")
	require.NoError(t, s.Submit(ctx, submission()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "wizard.confirmed", msg.Topic)
	assert.Equal(t, "sess-1", string(msg.Key))
	assert.Equal(t, []kafka.Header{
		{Key: "flow", Value: []byte("LEND")},
		{Key: "request_id", Value: []byte("req-7")},
	}, msg.Headers)

	var got domain.Submission
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, domain.FlowLend, got.Flow)
	assert.Equal(t, "beef", got.Proof.Digest)
	assert.True(t, got.Position.Principal.Quantity.Equal(decimal.RequireFromString("250")))
}

func TestKafkaSubmitterPropagatesWriteError(t *testing.T) {
	boom := errors.New("broker unreachable")
	s := NewKafkaSubmitter(mq.NewProducerWithWriter(&memWriter{err: boom}), "t", slog.Default())
	assert.ErrorIs(t, s.Submit(context.Background(), submission()), boom)
}

func TestLogSubmitter(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	s := NewLogSubmitter(l)

	require.NoError(t, s.Submit(context.Background(), submission()))
	out := buf.String()
	assert.Contains(t, out, `"msg":"wizard action submitted"`)
	assert.Contains(t, out, `"proof_digest":"beef"`)
	assert.Contains(t, out, `"module":"log_submitter"`)
}
