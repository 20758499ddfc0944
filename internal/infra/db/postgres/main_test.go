//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// ORCHESTRATOR_TEST_DSN points the suite at an existing database; without it
// a throwaway postgres container is started.
const dsnEnv = "ORCHESTRATOR_TEST_DSN"

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn, stop, err := testDatabase()
	if err != nil {
		log.Fatalf("test database: %v", err)
	}

	testPool, err = connectWithRetry(ctx, dsn, 15, 2*time.Second)
	if err != nil {
		stop()
		log.Fatalf("connect %s: %v", dsn, err)
	}
	if err := applySchema(ctx, testPool); err != nil {
		testPool.Close()
		stop()
		log.Fatalf("schema: %v", err)
	}

	code := m.Run()

	testPool.Close()
	stop()
	os.Exit(code)
}

// testDatabase returns a DSN and a func that releases whatever was started.
func testDatabase() (string, func(), error) {
	if dsn := os.Getenv(dsnEnv); dsn != "" {
		return dsn, func() {}, nil
	}
	const (
		name = "orchestrator-test"
		user = "orchestrator"
		pass = "orchestrator"
	)
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"--network", "host",
		"-e", "POSTGRES_DB="+name,
		"-e", "POSTGRES_USER="+user,
		"-e", "POSTGRES_PASSWORD="+pass,
		"postgres:14",
	).Output()
	if err != nil {
		return "", nil, fmt.Errorf("start postgres container (is docker running?): %w", err)
	}
	id := strings.TrimSpace(string(out))
	stop := func() {
		if err := exec.Command("docker", "stop", id).Run(); err != nil {
			log.Printf("stop container %s: %v", id, err)
		}
	}
	return fmt.Sprintf("postgres://%s:%s@localhost:5432/%s?sslmode=disable", user, pass, name), stop, nil
}

func connectWithRetry(ctx context.Context, dsn string, attempts int, pause time.Duration) (*pgxpool.Pool, error) {
	var err error
	for i := 1; i <= attempts; i++ {
		var p *pgxpool.Pool
		if p, err = Connect(ctx, dsn); err == nil {
			return p, nil
		}
		log.Printf("waiting for postgres (%d/%d): %v", i, attempts, err)
		time.Sleep(pause)
	}
	return nil, err
}

// applySchema loads deploy/postgres/init.sql from the module root.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for {
		path := filepath.Join(dir, "deploy", "postgres", "init.sql")
		if b, err := os.ReadFile(path); err == nil {
			_, err = pool.Exec(ctx, string(b))
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("deploy/postgres/init.sql not found above %s", dir)
		}
		dir = parent
	}
}

func cleanup(t *testing.T) {
	t.Helper()
	if _, err := testPool.Exec(context.Background(), `TRUNCATE session_rulings, session_breakthroughs, outcome_deliveries`); err != nil {
		t.Fatalf("truncate outbox: %v", err)
	}
}
