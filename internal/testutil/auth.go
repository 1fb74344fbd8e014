package testutil

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"cultivate/internal/auth"
	"cultivate/internal/config"
	"cultivate/internal/database"
)

// NewTestPolicy returns the default role table: admin and default.
func NewTestPolicy(t *testing.T) *auth.Policy {
	t.Helper()

	p, err := auth.NewPolicy(config.NewConfig("test", t.TempDir(), "secret").Auth.Roles)
	if err != nil {
		t.Fatalf("failed to build policy: %v", err)
	}
	return p
}

// NewTestAuthStore returns a user store on db with the cheapest bcrypt cost.
func NewTestAuthStore(t *testing.T, db *database.SQLiteDatabase) *auth.Store {
	t.Helper()

	return auth.NewStore(db.Conn(), NewTestPolicy(t), FixedClock()).WithHashCost(bcrypt.MinCost)
}
