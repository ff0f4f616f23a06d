// Package util provides test helpers shared across the platform's
// integration test suites.
package util

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/eap/pkg/database"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// SetupTestDatabase starts (once per test binary) a shared PostgreSQL
// testcontainer, applies the platform's embedded migrations via
// database.NewClient, and returns a ready *database.Client. Tests that need
// an isolated connection string (rather than a *database.Client) should use
// GetBaseConnectionString instead.
//
// In CI, set CI_DATABASE_URL to point at an externally managed Postgres
// instance instead of starting a container per job.
func SetupTestDatabase(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	cfg, err := parseConnString(GetBaseConnectionString(t))
	require.NoError(t, err)

	client, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// GetBaseConnectionString returns a connection string to the shared test
// database, starting the container on first use.
func GetBaseConnectionString(t *testing.T) string {
	t.Helper()
	return getOrCreateSharedDatabase(t)
}

func getOrCreateSharedDatabase(t *testing.T) string {
	t.Helper()

	containerOnce.Do(func() {
		if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
			sharedConnStr = ci
			return
		}

		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("eap_test"),
			postgres.WithUsername("eap_test"),
			postgres.WithPassword("eap_test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	if containerErr != nil {
		t.Skipf("skipping integration test: %v (is Docker running?)", containerErr)
	}
	return sharedConnStr
}

// parseConnString turns a postgres:// connection string into a
// database.Config, mirroring database.Config's own DATABASE_URL parsing
// since that helper is unexported.
func parseConnString(raw string) (database.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return database.Config{}, err
	}
	port := 5432
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return database.Config{}, fmt.Errorf("invalid port %q: %w", p, err)
		}
	}
	password, _ := u.User.Password()
	dbName := u.Path
	if len(dbName) > 0 && dbName[0] == '/' {
		dbName = dbName[1:]
	}
	return database.Config{
		Host:            u.Hostname(),
		Port:            port,
		User:            u.User.Username(),
		Password:        password,
		Database:        dbName,
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}, nil
}
