package shortlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"krat.local/internal/app/shortlink/expiry"
	"krat.local/internal/app/shortlink/stats"
	"krat.local/internal/platform/metrics"
	ptrace "krat.local/internal/platform/trace"
)

// Store 是 Service 依赖的短链存储，所有方法对单个短码都是原子的。
type Store interface {
	CodeChecker
	Insert(link Link) error
	Get(code string) (Link, bool)
	Remove(code string) bool
	RemoveIf(code string, pred func(Link) bool) bool
	Update(code string, mutate func(*Link) error) (Link, error)
	ListByOwner(ownerID string) []Link
	All() []Link
}

// ExpiryScheduler 安排在 after 之后对 code 触发一次过期命令。
type ExpiryScheduler interface {
	ScheduleExpiry(code string, after time.Duration)
}

// Creator 表示“创建短链”的用例能力。
type Creator interface {
	Create(ctx context.Context, ownerID, rawURL string, lifetimeSeconds, clickLimit int) (string, error)
}

// Resolver 表示“解析短码并计一次点击”的用例能力。
type Resolver interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// 生成器已经保证短码在检查时未被占用，这里只兜底并发插入同一个短码的竞争
const maxInsertAttempts = 5

// Service 编排短链的完整生命周期：创建、解析、改上限、删除、到期回收。
type Service struct {
	store     Store
	codes     *CodeGenerator
	scheduler ExpiryScheduler
	events    stats.Collector
	limits    Limits
	now       func() time.Time
	tracer    oteltrace.Tracer
}

type Option func(*Service)

// WithClock 替换时间来源，测试用。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, codes *CodeGenerator, scheduler ExpiryScheduler, events stats.Collector, limits Limits, opts ...Option) *Service {
	if events == nil {
		events = stats.Nop{}
	}
	s := &Service{
		store:     store,
		codes:     codes,
		scheduler: scheduler,
		events:    events,
		limits:    limits.normalized(),
		now:       time.Now,
		tracer:    otel.Tracer("krat.local/internal/app/shortlink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Limits() Limits {
	return s.limits
}

func (s *Service) Create(ctx context.Context, ownerID, rawURL string, lifetimeSeconds, clickLimit int) (code string, err error) {
	_, span := s.tracer.Start(ctx, "shortlink.Create", oteltrace.WithAttributes(attribute.String(ptrace.LinkOwnerID, ownerID)))
	defer func() { endSpan(span, err) }()

	rawURL = strings.TrimSpace(rawURL)
	if strings.TrimSpace(ownerID) == "" {
		return "", fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	}
	if lifetimeSeconds <= 0 {
		return "", fmt.Errorf("%w: lifetime must be positive, got %d", ErrInvalidArgument, lifetimeSeconds)
	}
	if clickLimit <= 0 {
		return "", fmt.Errorf("%w: click limit must be positive, got %d", ErrInvalidArgument, clickLimit)
	}
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}

	lifetime, limit := s.limits.Clamp(lifetimeSeconds, clickLimit)
	now := s.now()
	link := Link{
		URL:        rawURL,
		OwnerID:    ownerID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(lifetime),
		ClickLimit: limit,
	}

	inserted := false
	for attempt := 1; attempt <= maxInsertAttempts && !inserted; attempt++ {
		link.Code, err = s.codes.Generate()
		if err != nil {
			return "", err
		}
		switch err = s.store.Insert(link); {
		case err == nil:
			inserted = true
		case errors.Is(err, ErrDuplicateCode):
			slog.Warn("shortlink: generated code taken on insert", "code", link.Code, "attempt", attempt)
		default:
			return "", err
		}
	}
	if !inserted {
		return "", fmt.Errorf("%w: insert kept colliding after %d attempts", ErrResourceExhausted, maxInsertAttempts)
	}

	s.codes.Remember(link.Code)
	s.scheduler.ScheduleExpiry(link.Code, lifetime)

	metrics.LinksCreatedTotal.Inc()
	metrics.LiveLinks.Inc()
	span.SetAttributes(attribute.String(ptrace.LinkCode, link.Code), attribute.Int(ptrace.LinkClickLimit, limit))
	s.emit(stats.KindCreated, link, "")
	slog.Debug("shortlink created", "code", link.Code, "owner_id", ownerID, "lifetime", lifetime, "click_limit", limit)
	return link.Code, nil
}

func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	link, err := s.ResolveLink(ctx, code)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// ResolveLink 和 Resolve 相同，但返回计数之后的记录副本。
//
// 检查顺序：不存在 -> 点击数用完 -> 已过期。用完的链接不会被删除，所有者还可以调高上限；
// 过期的链接在返回 ErrExpired 前先从存储里移除。
func (s *Service) ResolveLink(ctx context.Context, code string) (link Link, err error) {
	_, span := s.tracer.Start(ctx, "shortlink.Resolve", oteltrace.WithAttributes(attribute.String(ptrace.LinkCode, code)))
	defer func() { endSpan(span, err) }()

	now := s.now()
	link, err = s.store.Update(code, func(l *Link) error {
		if l.Exhausted() {
			return ErrLimitExceeded
		}
		if l.Expired(now) {
			return ErrExpired
		}
		l.ClickCount++
		return nil
	})

	switch {
	case err == nil:
		metrics.ResolvesTotal.WithLabelValues("ok").Inc()
		span.SetAttributes(attribute.Int(ptrace.LinkClickCount, link.ClickCount), attribute.String(ptrace.LinkOutcome, "ok"))
		s.emit(stats.KindResolved, link, "")
		return link, nil
	case errors.Is(err, ErrNotFound):
		metrics.ResolvesTotal.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrLimitExceeded):
		metrics.ResolvesTotal.WithLabelValues("limit_exceeded").Inc()
	case errors.Is(err, ErrExpired):
		metrics.ResolvesTotal.WithLabelValues("expired").Inc()
		s.removeExpired(code, now, "resolve")
	}
	return Link{}, err
}

// UpdateClickLimit 不存在和不是所有者返回同一个 ErrNotFound。
// newLimit 小于当前点击数是允许的，之后的解析会返回 ErrLimitExceeded。
func (s *Service) UpdateClickLimit(ctx context.Context, code, ownerID string, newLimit int) (err error) {
	_, span := s.tracer.Start(ctx, "shortlink.UpdateClickLimit", oteltrace.WithAttributes(
		attribute.String(ptrace.LinkCode, code),
		attribute.Int(ptrace.LinkClickLimit, newLimit),
	))
	defer func() { endSpan(span, err) }()

	_, err = s.store.Update(code, func(l *Link) error {
		if l.OwnerID != ownerID {
			return ErrNotFound
		}
		if newLimit <= 0 {
			return fmt.Errorf("%w: click limit must be positive, got %d", ErrInvalidArgument, newLimit)
		}
		l.ClickLimit = newLimit
		return nil
	})
	return err
}

func (s *Service) Delete(ctx context.Context, code, ownerID string) (err error) {
	_, span := s.tracer.Start(ctx, "shortlink.Delete", oteltrace.WithAttributes(attribute.String(ptrace.LinkCode, code)))
	defer func() { endSpan(span, err) }()

	var removed Link
	ok := s.store.RemoveIf(code, func(l Link) bool {
		if l.OwnerID != ownerID {
			return false
		}
		removed = l
		return true
	})
	if !ok {
		return ErrNotFound
	}
	metrics.LinksRemovedTotal.WithLabelValues("owner").Inc()
	metrics.LiveLinks.Dec()
	s.emit(stats.KindDeleted, removed, "owner")
	return nil
}

// ListOwned 返回 ownerID 的链接摘要，已过期但尚未被回收的链接不返回。
func (s *Service) ListOwned(ctx context.Context, ownerID string) []Summary {
	_, span := s.tracer.Start(ctx, "shortlink.ListOwned", oteltrace.WithAttributes(attribute.String(ptrace.LinkOwnerID, ownerID)))
	defer span.End()

	now := s.now()
	links := s.store.ListByOwner(ownerID)
	out := make([]Summary, 0, len(links))
	for _, l := range links {
		if l.Expired(now) {
			continue
		}
		out = append(out, l.Summary())
	}
	return out
}

// HandleExpiry 是调度器的 dispatch 目标。
//
// 短码已经不在（被删除或已经因解析过期被移除）是正常情况；
// 只有真正删掉记录的那一次调用会发出 expired 事件。
func (s *Service) HandleExpiry(cmd expiry.Command) {
	now := s.now()
	var remaining time.Duration
	var gone Link
	removed := s.store.RemoveIf(cmd.Code, func(l Link) bool {
		if l.Expired(now) {
			gone = l
			return true
		}
		// 同一条记录但墙钟还没走到 ExpiresAt：补一次调度；
		// ExpiresAt 晚于 Due 说明短码已经被新记录复用，新记录有自己的调度
		if !l.ExpiresAt.After(cmd.Due) {
			remaining = l.ExpiresAt.Sub(now)
		}
		return false
	})
	if removed {
		s.afterExpiredRemoval(gone, "scheduler")
		return
	}
	if remaining > 0 {
		s.scheduler.ScheduleExpiry(cmd.Code, remaining)
		return
	}
	slog.Debug("shortlink: expiry fired for absent code", "code", cmd.Code)
}

// Restore 把快照中的链接写回存储并重新安排过期；已过期的直接丢弃。
func (s *Service) Restore(ctx context.Context, links []Link) (restored, dropped int) {
	_, span := s.tracer.Start(ctx, "shortlink.Restore")
	defer span.End()

	now := s.now()
	for _, l := range links {
		if l.Code == "" || l.ClickLimit <= 0 || l.Expired(now) {
			dropped++
			continue
		}
		if err := s.store.Insert(l); err != nil {
			slog.Warn("shortlink: restore skipped link", "code", l.Code, "err", err)
			dropped++
			continue
		}
		s.codes.Remember(l.Code)
		s.scheduler.ScheduleExpiry(l.Code, l.ExpiresAt.Sub(now))
		metrics.LiveLinks.Inc()
		restored++
	}
	span.SetAttributes(attribute.Int("krat.restore.restored", restored), attribute.Int("krat.restore.dropped", dropped))
	return restored, dropped
}

// Snapshot 返回当前所有链接的副本，用于持久化。
func (s *Service) Snapshot() []Link {
	return s.store.All()
}

func (s *Service) removeExpired(code string, now time.Time, reason string) {
	var gone Link
	removed := s.store.RemoveIf(code, func(l Link) bool {
		if !l.Expired(now) {
			return false
		}
		gone = l
		return true
	})
	if removed {
		s.afterExpiredRemoval(gone, reason)
	}
}

func (s *Service) afterExpiredRemoval(l Link, reason string) {
	metrics.LinksRemovedTotal.WithLabelValues(reason).Inc()
	metrics.LiveLinks.Dec()
	s.emit(stats.KindExpired, l, reason)
	slog.Debug("shortlink expired", "code", l.Code, "reason", reason)
}

func (s *Service) emit(kind stats.Kind, l Link, reason string) {
	s.events.Collect(stats.Event{
		Kind:       kind,
		Code:       l.Code,
		OwnerID:    l.OwnerID,
		URL:        l.URL,
		ClickCount: l.ClickCount,
		ClickLimit: l.ClickLimit,
		Reason:     reason,
		At:         s.now(),
	})
}

func endSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}
