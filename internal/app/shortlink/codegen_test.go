package shortlink

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"testing"
)

type takenSet map[string]bool

func (t takenSet) Exists(code string) bool { return t[code] }

type alwaysTaken struct{}

func (alwaysTaken) Exists(string) bool { return true }

func TestCodeGenerator_PrefixLengthAndAlphabet(t *testing.T) {
	g := NewCodeGenerator(CodeOptions{Prefix: "krat.ko/", Length: 8}, takenSet{}, nil)
	re := regexp.MustCompile(`^krat\.ko/[0-9A-Za-z]{8}$`)

	for i := 0; i < 200; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !re.MatchString(code) {
			t.Fatalf("code %q does not match %s", code, re)
		}
	}
}

func TestCodeGenerator_RetriesUntilUnused(t *testing.T) {
	g := NewCodeGenerator(CodeOptions{Prefix: "p/", Length: 4, MaxAttempts: 3}, takenSet{"p/0123": true}, nil)
	// 第一次 0123 已被占用；第二次 250 被拒绝采样丢弃，得到 abcd
	g.random = bytes.NewReader([]byte{0, 1, 2, 3, 250, 10, 11, 12, 13, 0, 0, 0})

	code, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code != "p/abcd" {
		t.Fatalf("code: got %q, want %q", code, "p/abcd")
	}
}

func TestCodeGenerator_BoundedAttempts(t *testing.T) {
	g := NewCodeGenerator(CodeOptions{Prefix: "p/", Length: 4, MaxAttempts: 5}, alwaysTaken{}, nil)

	_, err := g.Generate()
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("Generate: got %v, want %v", err, ErrResourceExhausted)
	}
}

type fakeFilter struct {
	added map[string]bool
}

func (f *fakeFilter) Add(code string)             { f.added[code] = true }
func (f *fakeFilter) MightExist(code string) bool { return f.added[code] }

func TestCodeGenerator_FilterMissSkipsStoreLookup(t *testing.T) {
	filter := &fakeFilter{added: map[string]bool{}}
	// 存储声称全部被占用，但过滤器说从未签发过，所以第一次就能拿到
	g := NewCodeGenerator(CodeOptions{Prefix: "p/", Length: 4, MaxAttempts: 1}, alwaysTaken{}, filter)

	code, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	g.Remember(code)
	if !filter.added[code] {
		t.Fatalf("Remember did not record %q", code)
	}

	// 过滤器命中后回退到存储查询
	same := make([]byte, 0, 4)
	for _, c := range []byte(code[len("p/"):]) {
		same = append(same, byte(strings.IndexByte(base62Alphabet, c)))
	}
	g.random = bytes.NewReader(same)
	if _, err := g.Generate(); err == nil {
		t.Fatal("Generate: expected an error once the only candidate is taken")
	}
}

func TestLimits_Clamp(t *testing.T) {
	tests := []struct {
		name         string
		limits       Limits
		lifetime     int
		clicks       int
		wantLifetime int
		wantClicks   int
	}{
		{"below maxima", Limits{3600, 10}, 5, 2, 5, 2},
		{"above maxima", Limits{3600, 10}, 99999, 500, 3600, 10},
		{"zero limits use defaults", Limits{}, 99999, 500, DefaultMaxLifetimeSeconds, DefaultMaxClickLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lifetime, clicks := tt.limits.Clamp(tt.lifetime, tt.clicks)
			if int(lifetime.Seconds()) != tt.wantLifetime {
				t.Fatalf("lifetime: got %v, want %ds", lifetime, tt.wantLifetime)
			}
			if clicks != tt.wantClicks {
				t.Fatalf("clicks: got %d, want %d", clicks, tt.wantClicks)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	for _, raw := range []string{"http://example.com", "https://example.com/a?b=c", " https://x.io "} {
		if err := ValidateURL(raw); err != nil {
			t.Fatalf("ValidateURL(%q): %v", raw, err)
		}
	}
	for _, raw := range []string{"", "example.com", "ftp://example.com", "http://", "://bad"} {
		err := ValidateURL(raw)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("ValidateURL(%q): got %v, want %v", raw, err, ErrInvalidArgument)
		}
	}
}
