package shortlink

import (
	"time"
)

// Link 是一条短链记录。
//
// Code / URL / OwnerID / CreatedAt / ExpiresAt 创建后不再变化；
// ClickLimit 只能由所有者修改，ClickCount 只能由解析路径递增。
// 存储层持有唯一的一份记录，对外返回的都是副本。
type Link struct {
	Code       string
	URL        string
	OwnerID    string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ClickLimit int
	ClickCount int
}

// Expired 报告在 now 时刻链接是否已超过有效期（now >= ExpiresAt）。
func (l Link) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Exhausted 报告点击次数是否已用完。
func (l Link) Exhausted() bool {
	return l.ClickCount >= l.ClickLimit
}

func (l Link) Summary() Summary {
	return Summary{
		Code:       l.Code,
		URL:        l.URL,
		ClickCount: l.ClickCount,
		ClickLimit: l.ClickLimit,
		ExpiresAt:  l.ExpiresAt,
	}
}

// Summary 是 ListOwned 返回给会话层的只读投影。
type Summary struct {
	Code       string
	URL        string
	ClickCount int
	ClickLimit int
	ExpiresAt  time.Time
}

// User 是已注册的用户，ID 是注册时分配的 UUID。
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Limits 是创建短链时的上限策略：用户请求的值只会被向下截断。
type Limits struct {
	MaxLifetimeSeconds int
	MaxClickLimit      int
}

const (
	DefaultMaxLifetimeSeconds = 3600
	DefaultMaxClickLimit      = 10
)

func (l Limits) normalized() Limits {
	if l.MaxLifetimeSeconds <= 0 {
		l.MaxLifetimeSeconds = DefaultMaxLifetimeSeconds
	}
	if l.MaxClickLimit <= 0 {
		l.MaxClickLimit = DefaultMaxClickLimit
	}
	return l
}

// Clamp 返回生效的有效期和点击上限。调用方保证两个请求值都为正。
func (l Limits) Clamp(lifetimeSeconds, clickLimit int) (time.Duration, int) {
	l = l.normalized()
	lifetime := min(lifetimeSeconds, l.MaxLifetimeSeconds)
	return time.Duration(lifetime) * time.Second, min(clickLimit, l.MaxClickLimit)
}
