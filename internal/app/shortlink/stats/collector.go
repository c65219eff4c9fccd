package stats

import (
	"sync"
	"time"

	"krat.local/internal/platform/metrics"
)

type Kind string

const (
	KindCreated  Kind = "created"
	KindResolved Kind = "resolved"
	KindExpired  Kind = "expired"
	KindDeleted  Kind = "deleted"
)

// Event 短链生命周期事件
type Event struct {
	Kind       Kind      `json:"kind"`
	Code       string    `json:"code"`
	OwnerID    string    `json:"owner_id"`
	URL        string    `json:"url,omitempty"`
	ClickCount int       `json:"click_count"`
	ClickLimit int       `json:"click_limit"`
	Reason     string    `json:"reason,omitempty"` // expired 事件：scheduler / resolve
	At         time.Time `json:"at"`
}

// Collector 收集器接口。Collect 不允许阻塞调用方。
type Collector interface {
	Collect(event Event)
	Close()
}

// ChannelCollector 基于 channel 的收集器，通道满了直接丢弃。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ChannelCollector{
		ch: make(chan Event, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
		metrics.EventsTotal.WithLabelValues(string(event.Kind), "queued").Inc()
	default:
		metrics.EventsTotal.WithLabelValues(string(event.Kind), "dropped").Inc()
	}
}

func (c *ChannelCollector) Events() <-chan Event {
	return c.ch
}

// Close 可以重复调用。
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Fanout 把同一个事件交给多个收集器。
type Fanout []Collector

func (f Fanout) Collect(event Event) {
	for _, c := range f {
		c.Collect(event)
	}
}

func (f Fanout) Close() {
	for _, c := range f {
		c.Close()
	}
}

// Nop 丢弃所有事件。
type Nop struct{}

func (Nop) Collect(Event) {}
func (Nop) Close()        {}
