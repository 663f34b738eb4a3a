// Package util provides shared integration-test plumbing: one PostgreSQL
// testcontainer per test binary, with an isolated database per test.
package util

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/database"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
	dbCounter     counter
)

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// NewTestClient returns a connected client on a fresh database with
// migrations applied. Skipped under -short.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	baseDSN := startContainer(t)
	dsn := createDatabase(t, baseDSN)

	client, err := database.Connect(dsn)
	if err != nil {
		t.Fatalf("connecting test database: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func startContainer(t *testing.T) string {
	t.Helper()
	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("sovd_test"),
			tcpostgres.WithUsername("sovd"),
			tcpostgres.WithPassword("sovd"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute)),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Fatalf("starting postgres container: %v", containerErr)
	}
	return containerDSN
}

// createDatabase provisions an isolated database on the shared container so
// parallel tests never see each other's rows.
func createDatabase(t *testing.T, baseDSN string) string {
	t.Helper()
	name := fmt.Sprintf("sovd_test_%d_%d", time.Now().UnixNano(), dbCounter.next())

	admin, err := sql.Open("pgx", baseDSN)
	if err != nil {
		t.Fatalf("opening admin connection: %v", err)
	}
	defer admin.Close()

	if _, err := admin.Exec("CREATE DATABASE " + name); err != nil {
		t.Fatalf("creating test database: %v", err)
	}

	return swapDatabase(baseDSN, name)
}

// swapDatabase replaces the database segment of a postgres URL.
func swapDatabase(dsn, name string) string {
	base := dsn
	query := ""
	if i := strings.Index(dsn, "?"); i >= 0 {
		base, query = dsn[:i], dsn[i:]
	}
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[:i]
	}
	return base + "/" + name + query
}
