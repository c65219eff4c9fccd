package shortlink

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateCode 只会在生成器和存储之间出现竞争时发生，Service 内部会重试。
	ErrDuplicateCode = errors.New("short code already exists")
	// ErrNotFound 同时表示“短码不存在”和“不是所有者”，两者对调用方不可区分。
	ErrNotFound          = errors.New("short link not found")
	ErrExpired           = errors.New("short link expired")
	ErrLimitExceeded     = errors.New("short link click limit exceeded")
	ErrResourceExhausted = errors.New("short code space exhausted")
)
