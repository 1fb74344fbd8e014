package forum

import (
	"context"
	"time"
)

// NewUser is the input to UserCreator.CreateUser.
type NewUser struct {
	Email    string
	Password string
	Role     string
}

// User is an account known to the auth subsystem.
type User struct {
	ID        int64
	Email     string
	Role      string
	CreatedAt time.Time
}

// UserCreator creates accounts in the auth subsystem.
type UserCreator interface {
	CreateUser(ctx context.Context, u NewUser) (*User, error)
}

// AdminCredentials bootstrap the administrator account during seeding.
type AdminCredentials struct {
	Email    string
	Password string
}

// Environment variables holding the optional admin bootstrap credentials.
const (
	EnvSeedAdminUsername = "BKND_SEED_ADMIN_USERNAME"
	EnvSeedAdminPassword = "BKND_SEED_ADMIN_PASSWORD"
)

// ResolveAdminCredentials reads the admin bootstrap credentials through getenv.
// It returns nil unless both values are non-empty.
func ResolveAdminCredentials(getenv func(string) string) *AdminCredentials {
	username := getenv(EnvSeedAdminUsername)
	password := getenv(EnvSeedAdminPassword)
	if username == "" || password == "" {
		return nil
	}
	return &AdminCredentials{Email: username, Password: password}
}
