package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 记录所有签发过的短码，供生成器跳过一次存储查询。
// 只增不减：删除/过期的短码仍然“可能存在”，此时生成器会回退到存储查询。
type BloomFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewBloomFilter 创建布隆过滤器
// expectedItems: 预期签发的短码数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	if expectedItems == 0 {
		expectedItems = 1
	}
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *BloomFilter) Add(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(code)
}

// AddAll 在恢复快照时批量写入，只加一次锁。
func (b *BloomFilter) AddAll(codes []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range codes {
		b.filter.AddString(c)
	}
}

// MightExist 返回 false 表示一定不存在，true 表示可能存在（有误判率）
func (b *BloomFilter) MightExist(code string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(code)
}

// Count 返回已添加的元素数量（估算）
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
