/*
 * @module service/event/event_service
 * @description 扫描事件发布服务，扫描进入终态后向 Kafka 发布 scan.completed 事件
 * @architecture 事件驱动架构 - 基础设施层
 * @documentReference DESIGN.md
 * @stateFlow 扫描终态 -> 构建事件 -> 序列化 -> 写入 Kafka
 * @rules 事件以扫描ID为消息键；发布失败只记录日志，不影响扫描结果
 * @dependencies github.com/segmentio/kafka-go
 * @refs service/scan/orchestrator.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"policyguard-service/service/config"
	"policyguard-service/service/models"

	"github.com/segmentio/kafka-go"
)

// EventTypeScanCompleted 扫描终态事件类型
const EventTypeScanCompleted = "scan.completed"

// ScanCompletedEvent 扫描终态事件
type ScanCompletedEvent struct {
	EventType            string            `json:"event_type"`
	ScanRunID            string            `json:"scan_run_id"`
	TenantID             string            `json:"tenant_id"`
	Status               models.ScanStatus `json:"status"`
	TotalRulesExecuted   int               `json:"total_rules_executed"`
	TotalViolationsFound int               `json:"total_violations_found"`
	PatternsExecuted     int               `json:"patterns_executed"`
	ErrorMessage         string            `json:"error_message,omitempty"`
	OccurredAt           time.Time         `json:"occurred_at"`
}

// NewScanCompletedEvent 从扫描记录构建事件
func NewScanCompletedEvent(run *models.ScanRun) ScanCompletedEvent {
	evt := ScanCompletedEvent{
		EventType:            EventTypeScanCompleted,
		ScanRunID:            run.ID,
		TenantID:             run.TenantID,
		Status:               run.Status,
		TotalRulesExecuted:   run.TotalRulesExecuted,
		TotalViolationsFound: run.TotalViolationsFound,
		PatternsExecuted:     len(run.PatternResults),
		OccurredAt:           time.Now().UTC(),
	}
	if run.CompletedAt != nil {
		evt.OccurredAt = run.CompletedAt.UTC()
	}
	if run.ErrorMessage != nil {
		evt.ErrorMessage = *run.ErrorMessage
	}
	return evt
}

// Publisher 扫描事件发布接口
type Publisher interface {
	PublishScanCompleted(ctx context.Context, evt ScanCompletedEvent) error
	Close() error
}

// NoopPublisher 未启用 Kafka 时使用
type NoopPublisher struct{}

func (NoopPublisher) PublishScanCompleted(context.Context, ScanCompletedEvent) error { return nil }
func (NoopPublisher) Close() error                                                   { return nil }

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher Kafka事件发布器
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaPublisher 创建Kafka事件发布器
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.ScanTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	slog.Info("Kafka事件发布器已创建", "brokers", cfg.Brokers, "topic", cfg.ScanTopic)
	return newKafkaPublisher(writer, cfg.ScanTopic)
}

func newKafkaPublisher(writer messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: 5 * time.Second,
	}
}

// NewPublisher 根据配置选择发布器
func NewPublisher(cfg config.KafkaConfig) Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg)
}

// PublishScanCompleted 发布扫描终态事件
func (p *KafkaPublisher) PublishScanCompleted(ctx context.Context, evt ScanCompletedEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化扫描事件失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.ScanRunID),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
			{Key: "tenant_id", Value: []byte(evt.TenantID)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送扫描事件失败: %w", err)
	}
	slog.Debug("扫描事件已发送", "topic", p.topic, "scan_run_id", evt.ScanRunID)
	return nil
}

// Close 关闭写入器
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
