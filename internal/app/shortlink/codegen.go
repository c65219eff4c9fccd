package shortlink

import (
	"crypto/rand"
	"fmt"
	"io"

	"krat.local/internal/platform/metrics"
)

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// 拒绝采样的上界：248 = 62*4，大于等于它的字节丢弃，保证每个字符等概率。
const maxUnbiasedByte = 256 - 256%len(base62Alphabet)

// CodeChecker 回答某个短码当前是否被占用，通常就是 LinkStore。
type CodeChecker interface {
	Exists(code string) bool
}

// CodeFilter 是一个只增不减的“可能存在”集合。
// MightExist 返回 false 时短码一定没有被签发过，可以跳过存储查询。
type CodeFilter interface {
	Add(code string)
	MightExist(code string) bool
}

type CodeOptions struct {
	Prefix      string
	Length      int
	MaxAttempts int
}

// CodeGenerator 生成 “固定前缀 + 定长随机 base62” 的短码。
type CodeGenerator struct {
	opts   CodeOptions
	taken  CodeChecker
	filter CodeFilter
	random io.Reader
}

// NewCodeGenerator 创建生成器，filter 可以为 nil。
func NewCodeGenerator(opts CodeOptions, taken CodeChecker, filter CodeFilter) *CodeGenerator {
	if opts.Length <= 0 {
		opts.Length = 8
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 16
	}
	return &CodeGenerator{
		opts:   opts,
		taken:  taken,
		filter: filter,
		random: rand.Reader,
	}
}

// Generate 循环生成直到找到一个未被占用的短码，最多尝试 MaxAttempts 次。
func (g *CodeGenerator) Generate() (string, error) {
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		code, err := g.randomCode()
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		if g.available(code) {
			metrics.CodeGenerationAttempts.Observe(float64(attempt))
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no unused code after %d attempts", ErrResourceExhausted, g.opts.MaxAttempts)
}

// Remember 记录一个已经写入存储的短码。
func (g *CodeGenerator) Remember(code string) {
	if g.filter != nil {
		g.filter.Add(code)
	}
}

func (g *CodeGenerator) available(code string) bool {
	if g.filter != nil && !g.filter.MightExist(code) {
		return true
	}
	return !g.taken.Exists(code)
}

func (g *CodeGenerator) randomCode() (string, error) {
	out := make([]byte, 0, len(g.opts.Prefix)+g.opts.Length)
	out = append(out, g.opts.Prefix...)

	buf := make([]byte, g.opts.Length)
	for len(out) < cap(out) {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, base62Alphabet[int(b)%len(base62Alphabet)])
			if len(out) == cap(out) {
				break
			}
		}
	}
	return string(out), nil
}
