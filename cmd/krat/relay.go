package main

import (
	"sync/atomic"

	"krat.local/internal/app/shortlink/stats"
)

// noticeRelay 把事件转给稍后才创建的会话。
type noticeRelay struct {
	target atomic.Pointer[stats.Collector]
}

func (r *noticeRelay) set(c stats.Collector) {
	r.target.Store(&c)
}

func (r *noticeRelay) Collect(e stats.Event) {
	if c := r.target.Load(); c != nil {
		(*c).Collect(e)
	}
}

func (r *noticeRelay) Close() {
	if c := r.target.Load(); c != nil {
		(*c).Close()
	}
}
