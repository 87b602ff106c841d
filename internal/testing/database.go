package testing

import (
	"database/sql"
	"testing"

	"github.com/teranos/semcluster/db"
)

// CreateTestDB opens an in-memory SQLite database with migrations applied.
// Cleanup is registered on t.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// a single connection keeps every query on the same in-memory database
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if err := db.Migrate(conn, nil); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
