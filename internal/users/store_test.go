package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestCreateGetList(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	alice, err := s.Create(ctx, "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if alice.ID == 0 {
		t.Fatal("Create() returned zero ID")
	}
	if _, err := s.Create(ctx, "bob", "bob@example.com"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != alice {
		t.Fatalf("Get() = %+v; want %+v", got, alice)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].Username != "alice" || all[1].Username != "bob" {
		t.Fatalf("List() = %+v", all)
	}
}

func TestCreateValidation(t *testing.T) {
	s := openStore(t)
	_, err := s.Create(context.Background(), "", "not-an-email")

	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("error %v is not a FieldError", err)
	}
	if fe.Conflict {
		t.Fatal("validation error flagged as conflict")
	}
	if len(fe.Fields["username"]) == 0 || len(fe.Fields["email"]) == 0 {
		t.Fatalf("Fields = %v", fe.Fields)
	}
}

func TestCreateConflicts(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	if _, err := s.Create(ctx, "alice", "alice@example.com"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name, username, email, field string
	}{
		{"duplicate username", "alice", "other@example.com", "username"},
		{"duplicate email", "carol", "alice@example.com", "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.username, tt.email)
			var fe *FieldError
			if !errors.As(err, &fe) || !fe.Conflict {
				t.Fatalf("error = %v; want conflict", err)
			}
			if len(fe.Fields[tt.field]) == 0 {
				t.Fatalf("Fields = %v; want %s", fe.Fields, tt.field)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	u, err := s.Create(ctx, "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Create(ctx, "bob", "bob@example.com"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := s.Update(ctx, u.ID, Patch{Email: strPtr("alice@new.example.com")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Username != "alice" || updated.Email != "alice@new.example.com" {
		t.Fatalf("Update() = %+v", updated)
	}

	_, err = s.Update(ctx, u.ID, Patch{})
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Conflict || len(fe.Fields["_schema"]) == 0 {
		t.Fatalf("empty patch error = %v", err)
	}

	_, err = s.Update(ctx, u.ID, Patch{Username: strPtr("bob")})
	if !errors.As(err, &fe) || !fe.Conflict {
		t.Fatalf("conflicting update error = %v", err)
	}

	if _, err := s.Update(ctx, 999, Patch{Username: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update(missing) error = %v; want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	u, err := s.Create(ctx, "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if err := s.Delete(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete() error = %v", err)
	}
}
