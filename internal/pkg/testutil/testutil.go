// Package testutil provides in-memory stores for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/internal/pkg/database"
)

var userSeq atomic.Uint64

// NewDB opens a migrated in-memory SQLite database. A single connection
// keeps the database alive for the whole test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// NewRedis starts a miniredis server bound to the test lifetime.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// CreateUser inserts an account with the given role.
func CreateUser(t testing.TB, db *gorm.DB, role string) *models.User {
	t.Helper()

	n := userSeq.Add(1)
	user := &models.User{
		Name:  fmt.Sprintf("Conta Teste %d", n),
		Email: fmt.Sprintf("conta%d@example.com", n),
		Role:  role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreatePractitioner inserts a practitioner account.
func CreatePractitioner(t testing.TB, db *gorm.DB) *models.User {
	t.Helper()
	return CreateUser(t, db, models.ROLE_PRACTITIONER)
}

// SeedAccessState stores a state row for an existing account.
func SeedAccessState(t testing.TB, db *gorm.DB, state *models.AccessState) *models.AccessState {
	t.Helper()
	state.Recompute()
	require.NoError(t, db.Omit("Account").Create(state).Error)
	return state
}

// LoadAccessState reads the current state row of an account.
func LoadAccessState(t testing.TB, db *gorm.DB, accountID uint) *models.AccessState {
	t.Helper()
	var state models.AccessState
	require.NoError(t, db.Where("account_id = ?", accountID).First(&state).Error)
	return &state
}

// Notifications returns all notifications of an account, oldest first.
func Notifications(t testing.TB, db *gorm.DB, accountID uint) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, db.Where("account_id = ?", accountID).Order("id ASC").Find(&out).Error)
	return out
}
