// Package testutil holds helpers shared by the DB-backed tests.
package testutil

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/pkg/database"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// OpenTestDB loads TEST_DATABASE_URL, opens a real Postgres connection scoped to
// its own schema (so packages tested in parallel do not truncate each other),
// runs migrations, and truncates every table after the test.
// The test is skipped when no database is configured.
func OpenTestDB(t *testing.T, schema string) *gorm.DB {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}

	base, err := database.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := base.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if sqlDB, err := base.DB(); err == nil {
		_ = sqlDB.Close()
	}

	db, err := database.Open(withSearchPath(dsn, schema))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Truncate AFTER each test (data survives within a single test).
	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	notification_reads,
	notifications,
	ratings,
	appointments,
	bids,
	case_notes,
	case_deadlines,
	case_files,
	cases,
	users
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err == nil {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return dsn + " search_path=" + schema
}

// SeedUser inserts a user with the given role.
func SeedUser(t *testing.T, db *gorm.DB, role models.Role) models.User {
	t.Helper()
	id := uuid.New()
	u := models.User{
		ID:       id,
		Email:    fmt.Sprintf("%s-%s@test.local", role, id.String()[:8]),
		Username: string(role) + "-" + id.String()[:8],
		Role:     role,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}
