package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	maxNameLen     = 100
)

type AuthStore interface {
	// FindUserByEmail returns nil, nil when no user has the address.
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// CreateUser inserts u and sets u.IsAdmin in the same atomic step: true only when no other
	// user exists yet. It returns ErrEmailTaken when the address is already registered.
	CreateUser(ctx context.Context, u *User) error
}

type TokenSigner func(uid, email string, admin bool, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func() string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func NewAuthService(store AuthStore, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func() string { return "u" + shortID(9) },
		signToken: signer,
		tokenTTL:  ttl,
	}
}

// Register creates an account. The very first account becomes an admin.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, NewFieldError("email", "not a valid address")
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return nil, NewFieldError("password", fmt.Sprintf("at least %d characters", minPasswordLen))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, NewFieldError("name", fmt.Sprintf("longer than %d characters", maxNameLen))
	}
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return nil, emailTaken()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{ID: s.idGen(), Email: email, Name: name, PassHash: hash, CreatedAt: s.now()}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, emailTaken()
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return s.issue(u)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if u.Blocked {
		return nil, NewForbiddenError("account is blocked")
	}
	return s.issue(u)
}

// Me returns the caller's own account.
func (s *AuthService) Me(ctx context.Context, caller Identity) (*User, error) {
	if caller.Anonymous() {
		return nil, NewUnauthorizedError("login required")
	}
	u, err := s.store.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, NewNotFoundError("user not found")
	}
	return u, nil
}

func (s *AuthService) issue(u *User) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Email, u.IsAdmin, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: u}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

func emailTaken() error {
	return &ServiceError{Code: ErrorConflict, Field: "email", Message: "email already registered"}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
