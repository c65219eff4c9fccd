package repo

import (
	"errors"
	"strings"
	"testing"

	"krat.local/internal/app/shortlink"
)

func TestUsersRepo_RegisterAndGet(t *testing.T) {
	u := NewUsersRepo()

	user, err := u.Register("  alice ")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Name != "alice" {
		t.Fatalf("Name: got %q, want %q", user.Name, "alice")
	}

	got, err := u.Get(strings.ToUpper(user.ID))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("ID: got %q, want %q", got.ID, user.ID)
	}
}

func TestUsersRepo_RejectsEmptyName(t *testing.T) {
	u := NewUsersRepo()
	_, err := u.Register("   ")
	if !errors.Is(err, shortlink.ErrInvalidArgument) {
		t.Fatalf("Register: got %v, want %v", err, shortlink.ErrInvalidArgument)
	}
}

func TestUsersRepo_GetUnknown(t *testing.T) {
	u := NewUsersRepo()
	for _, id := range []string{"", "not-a-uuid", "6f1c2c1e-8f4e-4d43-9d55-0d2b8d1f0a11"} {
		if _, err := u.Get(id); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("Get(%q): got %v, want %v", id, err, ErrUserNotFound)
		}
	}
}

func TestUsersRepo_RestoreSkipsInvalidIDs(t *testing.T) {
	u := NewUsersRepo()
	n := u.Restore([]shortlink.User{
		{ID: "6F1C2C1E-8F4E-4D43-9D55-0D2B8D1F0A11", Name: "bob"},
		{ID: "garbage", Name: "eve"},
	})
	if n != 1 {
		t.Fatalf("Restore: got %d, want 1", n)
	}
	if _, err := u.Get("6f1c2c1e-8f4e-4d43-9d55-0d2b8d1f0a11"); err != nil {
		t.Fatalf("Get restored user: %v", err)
	}
	if len(u.All()) != 1 {
		t.Fatalf("All: got %d users, want 1", len(u.All()))
	}
}
