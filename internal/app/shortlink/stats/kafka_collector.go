package stats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"krat.local/internal/platform/metrics"
)

// 事件类型放在消息头里，投递回调按它计数
const kindHeader = "kind"

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:       kafka.TCP(brokers...),
			Topic:      topic,
			Balancer:   &kafka.Hash{}, // 同一个短码的事件进同一个分区，保证顺序
			Async:      true,          // 异步发送，Collect 不阻塞调用方
			Completion: deliveryReport,
		},
	}
}

func (k *KafkaCollector) Collect(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event failed", "err", err, "code", event.Code)
		return
	}
	// Async 模式下这里只是入队，真正的投递结果在 deliveryReport 里
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:     []byte(event.Code),
		Value:   data,
		Headers: []kafka.Header{{Key: kindHeader, Value: []byte(event.Kind)}},
	}); err != nil {
		metrics.EventsTotal.WithLabelValues(string(event.Kind), "failed").Inc()
		slog.Error("kafka enqueue failed", "err", err, "code", event.Code)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}

// deliveryReport 是 Writer 的 Completion 回调，按批次记录投递成功或失败。
func deliveryReport(messages []kafka.Message, err error) {
	outcome := "published"
	if err != nil {
		outcome = "failed"
		slog.Error("kafka write failed", "err", err, "count", len(messages))
	}
	for _, m := range messages {
		metrics.EventsTotal.WithLabelValues(messageKind(m), outcome).Inc()
	}
}

func messageKind(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == kindHeader {
			return string(h.Value)
		}
	}
	return "unknown"
}
