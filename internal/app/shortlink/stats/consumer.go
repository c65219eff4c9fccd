package stats

import (
	"context"
	"log/slog"
	"time"
)

// Consumer 消费 ChannelCollector 中的事件，攒批后交给 Sink。
type Consumer struct {
	collector *ChannelCollector
	sink      Sink
	batchSize int
	interval  time.Duration
}

func NewConsumer(collector *ChannelCollector, sink Sink) *Consumer {
	return &Consumer{
		collector: collector,
		sink:      sink,
		batchSize: 100,         //批量写入大小
		interval:  time.Second, //最大等待时间
	}
}

// 阻塞 消费循环，ctx 结束或 collector 关闭后把剩余事件写完再返回
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]Event, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(batch)
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// drain 把通道里已经排队的事件一并写掉，不等待新事件。
func (c *Consumer) drain(batch []Event) {
	for {
		select {
		case event, ok := <-c.collector.Events():
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, event)
		default:
			c.flush(batch)
			return
		}
	}
}

func (c *Consumer) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.sink.Write(ctx, batch); err != nil {
		slog.Error("link events: flush failed", "err", err, "count", len(batch))
		return
	}
	slog.Debug("link events: flushed", "count", len(batch))
}
