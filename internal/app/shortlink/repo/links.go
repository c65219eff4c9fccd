package repo

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"krat.local/internal/app/shortlink"
)

// LinksRepo 是进程内唯一的短链存储。
//
// 按短码哈希分片，每个分片一把读写锁；同一个短码的所有操作都落在同一把锁上，
// 因此单 key 操作都是线性一致的，不同分片之间互不阻塞。对外只返回副本。
type LinksRepo struct {
	shards []*linkShard
	mask   uint64
}

type linkShard struct {
	mu    sync.RWMutex
	links map[string]*shortlink.Link
}

var _ shortlink.Store = (*LinksRepo)(nil)

// NewLinksRepo 创建存储，分片数向上取整到 2 的幂。
func NewLinksRepo(shardCount int) *LinksRepo {
	n := 1
	for n < shardCount {
		n <<= 1
	}
	shards := make([]*linkShard, n)
	for i := range shards {
		shards[i] = &linkShard{links: make(map[string]*shortlink.Link)}
	}
	return &LinksRepo{shards: shards, mask: uint64(n - 1)}
}

func (r *LinksRepo) shard(code string) *linkShard {
	return r.shards[xxhash.Sum64String(code)&r.mask]
}

func (r *LinksRepo) Insert(link shortlink.Link) error {
	s := r.shard(link.Code)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.Code]; ok {
		return shortlink.ErrDuplicateCode
	}
	l := link
	s.links[link.Code] = &l
	return nil
}

func (r *LinksRepo) Get(code string) (shortlink.Link, bool) {
	s := r.shard(code)
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[code]
	if !ok {
		return shortlink.Link{}, false
	}
	return *l, true
}

func (r *LinksRepo) Exists(code string) bool {
	s := r.shard(code)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.links[code]
	return ok
}

// Remove 删除不存在的短码不是错误，返回值表示这一次调用是否真的删掉了它。
func (r *LinksRepo) Remove(code string) bool {
	return r.RemoveIf(code, func(shortlink.Link) bool { return true })
}

// RemoveIf 在持有分片锁时检查 pred，只有记录存在且 pred 为 true 时才删除。
func (r *LinksRepo) RemoveIf(code string, pred func(shortlink.Link) bool) bool {
	s := r.shard(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[code]
	if !ok || !pred(*l) {
		return false
	}
	delete(s.links, code)
	return true
}

// Update 在分片锁内对记录副本执行 mutate；mutate 返回错误时什么都不提交。
// 返回值是提交后的副本。
func (r *LinksRepo) Update(code string, mutate func(*shortlink.Link) error) (shortlink.Link, error) {
	s := r.shard(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[code]
	if !ok {
		return shortlink.Link{}, shortlink.ErrNotFound
	}
	next := *l
	if err := mutate(&next); err != nil {
		return shortlink.Link{}, err
	}
	*l = next
	return next, nil
}

// ListByOwner 按创建时间排序。各分片依次加锁，结果不是全局快照。
func (r *LinksRepo) ListByOwner(ownerID string) []shortlink.Link {
	return r.collect(func(l *shortlink.Link) bool { return l.OwnerID == ownerID })
}

func (r *LinksRepo) All() []shortlink.Link {
	return r.collect(func(*shortlink.Link) bool { return true })
}

func (r *LinksRepo) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.links)
		s.mu.RUnlock()
	}
	return n
}

func (r *LinksRepo) collect(keep func(*shortlink.Link) bool) []shortlink.Link {
	out := make([]shortlink.Link, 0)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, l := range s.links {
			if keep(l) {
				out = append(out, *l)
			}
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
