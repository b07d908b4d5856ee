package services

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type authStubStore struct {
	users map[string]*User
}

func newAuthStubStore() *authStubStore {
	return &authStubStore{users: map[string]*User{}}
}

func (s *authStubStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	if u, ok := s.users[email]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *authStubStore) GetUser(_ context.Context, id string) (*User, error) {
	for _, u := range s.users {
		if u.ID == id {
			copy := *u
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *authStubStore) CreateUser(_ context.Context, u *User) error {
	if _, ok := s.users[u.Email]; ok {
		return ErrEmailTaken
	}
	u.IsAdmin = len(s.users) == 0
	copy := *u
	s.users[u.Email] = &copy
	return nil
}

func newTestAuth(store AuthStore) *AuthService {
	svc := NewAuthService(store, func(uid, email string, admin bool, ttl time.Duration) (string, error) {
		return fmt.Sprintf("token:%s:%t", uid, admin), nil
	}, time.Hour)
	svc.now = func() time.Time { return time.Unix(0, 0) }
	n := 0
	svc.idGen = func() string { n++; return fmt.Sprintf("u%d", n) }
	return svc
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	store := newAuthStubStore()
	svc := newTestAuth(store)

	res, err := svc.Register(ctx, "User@Example.com", "Secret123", "")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.User.ID != "u1" || res.User.Email != "user@example.com" || res.User.Name != "user" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.Token != "token:u1:true" {
		t.Fatalf("first user should be admin, token %q", res.Token)
	}

	if _, err = svc.Register(ctx, "user@example.com", "Secret123", "Again"); !HasCode(err, ErrorConflict) {
		t.Fatalf("expected conflict error on duplicate registration, got %v", err)
	}

	second, err := svc.Register(ctx, "two@example.com", "Secret123", "Two")
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if second.User.IsAdmin {
		t.Fatalf("second user must not be admin")
	}

	loginRes, err := svc.Login(ctx, "user@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("expected token in login response")
	}

	if _, err := svc.Login(ctx, "user@example.com", "wrong"); !HasCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Login(ctx, "missing@example.com", "Secret123"); !HasCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized for missing user, got %v", err)
	}
}

func TestAuthBlockedUserCannotLogin(t *testing.T) {
	ctx := context.Background()
	store := newAuthStubStore()
	svc := newTestAuth(store)
	if _, err := svc.Register(ctx, "b@example.com", "Secret123", "B"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	store.users["b@example.com"].Blocked = true
	if _, err := svc.Login(ctx, "b@example.com", "Secret123"); !HasCode(err, ErrorForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAuthValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth(newAuthStubStore())

	if _, err := svc.Register(ctx, "", "", ""); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := svc.Register(ctx, "not-an-email", "Secret123", ""); !HasCode(err, ErrorInvalid) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := svc.Register(ctx, "a@example.com", "short", ""); !HasCode(err, ErrorInvalid) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
	if _, err := svc.Login(ctx, "", ""); err == nil {
		t.Fatalf("expected validation error on login")
	}
	if _, err := svc.Me(ctx, Identity{}); !HasCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized for anonymous Me, got %v", err)
	}
}

// lateDuplicateStore hides an existing address from FindUserByEmail, the way a concurrent
// registration slips past the pre-check, so only the insert sees the collision.
type lateDuplicateStore struct{ *authStubStore }

func (lateDuplicateStore) FindUserByEmail(context.Context, string) (*User, error) { return nil, nil }

func TestRegisterDuplicateDetectedAtInsert(t *testing.T) {
	ctx := context.Background()
	inner := newAuthStubStore()
	svc := newTestAuth(lateDuplicateStore{inner})
	if _, err := svc.Register(ctx, "dup@example.com", "Secret123", ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(ctx, "dup@example.com", "Secret123", "")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConflict || se.Field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}
}
