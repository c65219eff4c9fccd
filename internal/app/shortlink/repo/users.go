package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"krat.local/internal/app/shortlink"
)

var ErrUserNotFound = errors.New("user not found")

// ErrInvalidUsername 同时匹配 shortlink.ErrInvalidArgument。
var ErrInvalidUsername = fmt.Errorf("%w: username is not allowed", shortlink.ErrInvalidArgument)

// UsersRepo 是内存中的用户表，key 是规范化后的 UUID 字符串。
type UsersRepo struct {
	mu    sync.RWMutex
	users map[string]shortlink.User
	now   func() time.Time
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		users: make(map[string]shortlink.User),
		now:   time.Now,
	}
}

// Register 为 name 分配一个新的 UUID。名字不要求唯一。
func (u *UsersRepo) Register(name string) (shortlink.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return shortlink.User{}, ErrInvalidUsername
	}
	user := shortlink.User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: u.now(),
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[user.ID] = user
	return user, nil
}

// Get 接受任意大小写/带花括号的 UUID 写法。
func (u *UsersRepo) Get(id string) (shortlink.User, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return shortlink.User{}, ErrUserNotFound
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[parsed.String()]
	if !ok {
		return shortlink.User{}, ErrUserNotFound
	}
	return user, nil
}

func (u *UsersRepo) All() []shortlink.User {
	u.mu.RLock()
	out := make([]shortlink.User, 0, len(u.users))
	for _, user := range u.users {
		out = append(out, user)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Restore 写入快照中的用户，ID 不合法的记录跳过，返回写入条数。
func (u *UsersRepo) Restore(users []shortlink.User) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, user := range users {
		parsed, err := uuid.Parse(user.ID)
		if err != nil {
			continue
		}
		user.ID = parsed.String()
		u.users[user.ID] = user
		n++
	}
	return n
}
