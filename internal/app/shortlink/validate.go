package shortlink

import (
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL 是 ErrInvalidArgument 的一种，errors.Is 两者都能匹配。
var ErrInvalidURL = fmt.Errorf("%w: invalid url", ErrInvalidArgument)

// ValidateURL 校验用户输入的原始 URL。
//
// 规则：
// - scheme 必须是 http/https
// - host 不能为空
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" {
		return ErrInvalidURL
	}
	return nil
}
