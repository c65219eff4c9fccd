package expiry

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"krat.local/internal/platform/metrics"
)

// Command 是一次到期触发：Due 之后把 Code 交给 dispatch。
type Command struct {
	Code string
	Due  time.Time
}

// Scheduler 用一个小顶堆和一个 timer 管理所有到期命令。
//
// ScheduleExpiry 只加锁入堆，不等待 timer；Run 所在的 goroutine 是唯一会挂起等待的地方。
// 每个命令最多被 dispatch 一次，且不会早于 Due。
type Scheduler struct {
	mu    sync.Mutex
	queue commandQueue
	wake  chan struct{}
	now   func() time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

func (s *Scheduler) ScheduleExpiry(code string, after time.Duration) {
	if after < 0 {
		after = 0
	}
	cmd := Command{Code: code, Due: s.now().Add(after)}

	s.mu.Lock()
	heap.Push(&s.queue, cmd)
	depth := len(s.queue)
	s.mu.Unlock()
	metrics.ExpiryQueueDepth.Set(float64(depth))

	// 非阻塞唤醒：Run 可能正在等一个更晚的 timer
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending 返回尚未触发的命令数。
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run 阻塞直到 ctx 结束。dispatch 在 Run 的 goroutine 上串行执行，不能阻塞。
// ctx 结束时仍在堆里的命令直接丢弃（进程退出时由快照恢复重新调度）。
func (s *Scheduler) Run(ctx context.Context, dispatch func(Command)) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		due, wait, ok := s.popDue()
		for _, cmd := range due {
			dispatch(cmd)
		}
		if len(due) > 0 {
			continue
		}

		var timerC <-chan time.Time
		if ok {
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timerC:
		}
		timer.Stop()
	}
}

// popDue 取出所有已经到期的命令；否则返回距离下一个命令到期的时间。
func (s *Scheduler) popDue() (due []Command, wait time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for len(s.queue) > 0 && !s.queue[0].Due.After(now) {
		due = append(due, heap.Pop(&s.queue).(Command))
	}
	if len(due) > 0 {
		metrics.ExpiryQueueDepth.Set(float64(len(s.queue)))
	}
	if len(s.queue) == 0 {
		return due, 0, false
	}
	return due, s.queue[0].Due.Sub(now), true
}

type commandQueue []Command

func (q commandQueue) Len() int           { return len(q) }
func (q commandQueue) Less(i, j int) bool { return q[i].Due.Before(q[j].Due) }
func (q commandQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *commandQueue) Push(x any) { *q = append(*q, x.(Command)) }

func (q *commandQueue) Pop() any {
	old := *q
	n := len(old)
	cmd := old[n-1]
	*q = old[:n-1]
	return cmd
}
