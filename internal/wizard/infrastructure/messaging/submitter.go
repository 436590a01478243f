// Package messaging confirm 提交钩子实现：日志与 Kafka
package messaging

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/defiwizard/internal/wizard/domain"
	"github.com/wyfcoding/defiwizard/pkg/logger"
)

// LogSubmitter 仅记录日志，不做真实提交
type LogSubmitter struct {
	logger *slog.Logger
}

// NewLogSubmitter 创建日志提交器
func NewLogSubmitter(l *slog.Logger) domain.Submitter {
	return &LogSubmitter{logger: l.With("module", "log_submitter")}
}

func (s *LogSubmitter) Submit(ctx context.Context, sub *domain.Submission) error {
	args := []any{"flow", sub.Flow, "account_id", sub.AccountID}
	if p := sub.Position.Principal; p != nil {
		args = append(args, "asset_id", p.AssetID, "quantity", p.Quantity.String())
	}
	if sub.Proof != nil {
		args = append(args, "proof_digest", sub.Proof.Digest)
	}
	logger.FromContext(ctx, s.logger).InfoContext(ctx, "wizard action submitted", args...)
	return nil
}

// Publisher 消息发布接口
type Publisher interface {
	SendMessage(ctx context.Context, topic, key string, value any, headers ...kafka.Header) error
}

// KafkaSubmitter 以会话 ID 为 key 将确认的操作发布到 Kafka
type KafkaSubmitter struct {
	publisher Publisher
	topic     string
	logger    *slog.Logger
}

// NewKafkaSubmitter 创建 Kafka 提交器
func NewKafkaSubmitter(publisher Publisher, topic string, l *slog.Logger) domain.Submitter {
	return &KafkaSubmitter{publisher: publisher, topic: topic, logger: l.With("module", "kafka_submitter")}
}

func (s *KafkaSubmitter) Submit(ctx context.Context, sub *domain.Submission) error {
	headers := []kafka.Header{
		{Key: "flow", Value: []byte(sub.Flow)},
		{Key: "request_id", Value: []byte(logger.RequestID(ctx))},
	}
	if err := s.publisher.SendMessage(ctx, s.topic, sub.SessionID, sub, headers...); err != nil {
		return err
	}
	logger.FromContext(ctx, s.logger).InfoContext(ctx, "wizard action published", "topic", s.topic, "flow", sub.Flow)
	return nil
}
