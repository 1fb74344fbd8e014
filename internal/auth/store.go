package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"cultivate/internal/forum"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// MinPasswordLength is the shortest password CreateUser accepts.
const MinPasswordLength = 8

// Store keeps user accounts in the users table.
type Store struct {
	db       *sql.DB
	policy   *Policy
	clock    forum.Clock
	hashCost int
}

// NewStore creates a Store over a migrated database. A nil clock uses the
// wall clock.
func NewStore(db *sql.DB, policy *Policy, clock forum.Clock) *Store {
	if clock == nil {
		clock = forum.RealClock{}
	}
	return &Store{db: db, policy: policy, clock: clock, hashCost: bcrypt.DefaultCost}
}

// WithHashCost sets the bcrypt cost for new passwords.
func (s *Store) WithHashCost(cost int) *Store {
	s.hashCost = cost
	return s
}

// CreateUser validates and stores a new account. An empty role gets the
// policy's default role.
func (s *Store) CreateUser(ctx context.Context, nu forum.NewUser) (*forum.User, error) {
	email, err := normalizeEmail(nu.Email)
	if err != nil {
		return nil, err
	}
	if len(nu.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrPasswordTooShort, MinPasswordLength)
	}
	role, err := s.policy.ResolveRole(nu.Role)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &forum.User{Email: email, Role: role, CreatedAt: s.clock.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, created_at) VALUES (?, ?, ?, ?)",
		u.Email, string(hash), u.Role, u.CreatedAt)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// FindUserByEmail returns the account or ErrUserNotFound.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*forum.User, error) {
	u, _, err := s.findUser(ctx, email)
	return u, err
}

// VerifyPassword returns the account when password matches. Unknown emails
// and wrong passwords both yield ErrInvalidCredentials.
func (s *Store) VerifyPassword(ctx context.Context, email, password string) (*forum.User, error) {
	u, hash, err := s.findUser(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// CountUsers returns the number of accounts.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func (s *Store) findUser(ctx context.Context, email string) (*forum.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u := &forum.User{}
	var hash string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, role, created_at FROM users WHERE email = ?", email,
	).Scan(&u.ID, &u.Email, &hash, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	if err != nil {
		return nil, "", fmt.Errorf("finding user: %w", err)
	}
	u.CreatedAt = createdAt
	return u, hash, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return email, nil
}

var _ forum.UserCreator = (*Store)(nil)
