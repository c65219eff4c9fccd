package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"krat.local/internal/app/shortlink"
	"krat.local/internal/app/shortlink/stats"
)

// LinkService 是会话层用到的短链操作。
type LinkService interface {
	Create(ctx context.Context, ownerID, rawURL string, lifetimeSeconds, clickLimit int) (string, error)
	ResolveLink(ctx context.Context, code string) (shortlink.Link, error)
	UpdateClickLimit(ctx context.Context, code, ownerID string, newLimit int) error
	Delete(ctx context.Context, code, ownerID string) error
	ListOwned(ctx context.Context, ownerID string) []shortlink.Summary
	Limits() shortlink.Limits
}

type UserDirectory interface {
	Register(name string) (shortlink.User, error)
	Get(id string) (shortlink.User, error)
}

// Console 是交互式文本会话，同时作为 stats.Collector 打印生命周期通知。
type Console struct {
	links LinkService
	users UserDirectory
	in    *bufio.Scanner

	mu  sync.Mutex // 保护 out，菜单和通知打印在不同 goroutine
	out io.Writer

	// 通知先入队，由 PrintNotices 打印；队列满了丢弃，不拖住服务和调度器
	notices *stats.ChannelCollector
}

const noticeBuffer = 64

var _ stats.Collector = (*Console)(nil)

func New(in io.Reader, out io.Writer, links LinkService, users UserDirectory) *Console {
	return &Console{
		links: links,
		users: users,
		in:      bufio.NewScanner(in),
		out:     out,
		notices: stats.NewChannelCollector(noticeBuffer),
	}
}

var errExit = errors.New("exit")

// Run 运行主菜单，直到用户选择退出、输入结束或 ctx 结束。
func (c *Console) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		c.printf("\n1. Register\n2. Log in\n3. Open short link\n4. Exit\n> ")
		choice, err := c.readLine()
		if err != nil {
			return ignoreEOF(err)
		}
		switch choice {
		case "1":
			err = c.register()
		case "2":
			err = c.login(ctx)
		case "3":
			err = c.open(ctx)
		case "4", "exit", "quit":
			return nil
		default:
			c.printf("Unknown choice, try again.\n")
		}
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			return ignoreEOF(err)
		}
	}
	return nil
}

func (c *Console) register() error {
	name, err := c.prompt("Your name: ")
	if err != nil {
		return err
	}
	user, err := c.users.Register(name)
	if err != nil {
		c.printf("Registration failed: %v\n", err)
		return nil
	}
	c.printf("Registered. Your UUID: %s\nKeep it, you log in with it.\n", user.ID)
	return nil
}

func (c *Console) login(ctx context.Context) error {
	id, err := c.prompt("Your UUID: ")
	if err != nil {
		return err
	}
	user, err := c.users.Get(id)
	if err != nil {
		c.printf("Unknown UUID, try again.\n")
		return nil
	}
	c.printf("Welcome, %s!\n", user.Name)
	return c.userMenu(ctx, user)
}

func (c *Console) userMenu(ctx context.Context, user shortlink.User) error {
	for ctx.Err() == nil {
		c.printf("\n1. Create short link\n2. My links\n3. Change click limit\n4. Delete link\n5. Log out\n> ")
		choice, err := c.readLine()
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			err = c.create(ctx, user)
		case "2":
			c.list(ctx, user)
		case "3":
			err = c.updateLimit(ctx, user)
		case "4":
			err = c.delete(ctx, user)
		case "5":
			c.printf("Logged out.\n")
			return nil
		default:
			c.printf("Unknown choice, try again.\n")
		}
		if err != nil {
			return err
		}
	}
	return errExit
}

func (c *Console) create(ctx context.Context, user shortlink.User) error {
	limits := c.links.Limits()
	rawURL, err := c.prompt("Original URL: ")
	if err != nil {
		return err
	}
	lifetime, err := c.promptInt(fmt.Sprintf("Lifetime in seconds (max %d): ", limits.MaxLifetimeSeconds))
	if err != nil {
		return err
	}
	clicks, err := c.promptInt(fmt.Sprintf("Click limit (max %d): ", limits.MaxClickLimit))
	if err != nil {
		return err
	}

	code, err := c.links.Create(ctx, user.ID, rawURL, lifetime, clicks)
	if err != nil {
		c.printf("Could not create link: %s\n", describe(err))
		return nil
	}
	effLifetime, effClicks := limits.Clamp(lifetime, clicks)
	c.printf("Short link created: %s (lives %s, %d clicks)\n", code, effLifetime, effClicks)
	return nil
}

func (c *Console) list(ctx context.Context, user shortlink.User) {
	links := c.links.ListOwned(ctx, user.ID)
	if len(links) == 0 {
		c.printf("You have no active links.\n")
		return
	}
	c.printf("Your links:\n")
	for _, l := range links {
		c.printf("%s -> %s (clicks: %d/%d, expires %s)\n",
			l.Code, l.URL, l.ClickCount, l.ClickLimit, l.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
}

func (c *Console) updateLimit(ctx context.Context, user shortlink.User) error {
	code, err := c.prompt("Short link to change: ")
	if err != nil {
		return err
	}
	limit, err := c.promptInt("New click limit: ")
	if err != nil {
		return err
	}
	if err := c.links.UpdateClickLimit(ctx, code, user.ID, limit); err != nil {
		c.printf("Could not change limit: %s\n", describe(err))
		return nil
	}
	c.printf("Click limit updated.\n")
	return nil
}

func (c *Console) delete(ctx context.Context, user shortlink.User) error {
	code, err := c.prompt("Short link to delete: ")
	if err != nil {
		return err
	}
	if err := c.links.Delete(ctx, code, user.ID); err != nil {
		c.printf("Could not delete link: %s\n", describe(err))
		return nil
	}
	c.printf("Link deleted.\n")
	return nil
}

func (c *Console) open(ctx context.Context) error {
	code, err := c.prompt("Short link: ")
	if err != nil {
		return err
	}
	link, err := c.links.ResolveLink(ctx, code)
	if err != nil {
		c.printf("%s\n", describe(err))
		return nil
	}
	c.printf("Go to: %s\n", link.URL)
	return nil
}

// Collect 只把过期和访问通知放进队列，实现 stats.Collector。
func (c *Console) Collect(ev stats.Event) {
	switch ev.Kind {
	case stats.KindExpired, stats.KindResolved:
		c.notices.Collect(ev)
	}
}

// Close 关闭通知队列，PrintNotices 打印完剩余通知后返回。
func (c *Console) Close() {
	c.notices.Close()
}

// PrintNotices 打印排队的通知，直到 Close。调用方在单独的 goroutine 里运行它。
func (c *Console) PrintNotices() {
	for ev := range c.notices.Events() {
		switch ev.Kind {
		case stats.KindExpired:
			c.printf("[notice] short link %s has expired\n", ev.Code)
		case stats.KindResolved:
			c.printf("[notice] short link %s used %d/%d clicks\n", ev.Code, ev.ClickCount, ev.ClickLimit)
		}
	}
}

// describe 把领域错误翻译成给用户看的文字。
func describe(err error) string {
	switch {
	case errors.Is(err, shortlink.ErrNotFound):
		return "link not found or you have no rights to change it"
	case errors.Is(err, shortlink.ErrLimitExceeded):
		return "click limit reached, the link is unavailable"
	case errors.Is(err, shortlink.ErrExpired):
		return "the link has expired and is unavailable"
	case errors.Is(err, shortlink.ErrInvalidURL):
		return "URL must start with http:// or https://"
	case errors.Is(err, shortlink.ErrInvalidArgument):
		return "values must be positive numbers"
	case errors.Is(err, shortlink.ErrResourceExhausted):
		return "no free short codes right now, try again later"
	}
	return err.Error()
}

func (c *Console) prompt(label string) (string, error) {
	c.printf("%s", label)
	return c.readLine()
}

// promptInt 反复询问直到输入一个整数。
func (c *Console) promptInt(label string) (int, error) {
	for {
		raw, err := c.prompt(label)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(raw)
		if err == nil {
			return n, nil
		}
		c.printf("Please enter a whole number.\n")
	}
}

func (c *Console) readLine() (string, error) {
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
