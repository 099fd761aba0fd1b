package integration

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/migrations"
)

const (
	postgresImage = "postgres:16-alpine"
	readyTimeout  = 45 * time.Second
)

// pgContainer is a disposable postgres server managed through the Docker CLI.
type pgContainer struct {
	id  string
	dsn string
}

// startWithTestcontainers runs a postgres container on a Docker-assigned
// port, waits until it answers queries and bootstraps the default tenant
// from the embedded migrations.
func startWithTestcontainers(ctx context.Context) (string, func(), error) {
	c, err := runPostgres(ctx)
	if err != nil {
		return "", nil, err
	}
	if err := c.bootstrap(ctx); err != nil {
		c.stop()
		return "", nil, err
	}
	return c.dsn, c.stop, nil
}

func runPostgres(ctx context.Context) (*pgContainer, error) {
	out, err := docker(ctx, "run", "-d", "--rm", "-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=clinic",
		"-e", "POSTGRES_PASSWORD=clinic",
		"-e", "POSTGRES_DB=clinic",
		postgresImage,
		"-c", "max_connections=60",
	)
	if err != nil {
		return nil, err
	}
	c := &pgContainer{id: strings.TrimSpace(out)}

	mapped, err := docker(ctx, "port", c.id, "5432/tcp")
	if err != nil {
		c.stop()
		return nil, err
	}
	// "127.0.0.1:49153", one binding per line.
	hostPort := strings.TrimSpace(strings.SplitN(mapped, "\n", 2)[0])
	if _, _, err := net.SplitHostPort(hostPort); err != nil {
		c.stop()
		return nil, fmt.Errorf("unexpected port mapping %q: %w", mapped, err)
	}
	c.dsn = fmt.Sprintf("postgres://clinic:clinic@%s/clinic?sslmode=disable", hostPort)

	if err := c.waitReady(ctx); err != nil {
		c.stop()
		return nil, err
	}
	return c, nil
}

// waitReady polls with a single connection rather than a pool so that a
// half-started server is not handed a burst of dials.
func (c *pgContainer) waitReady(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = readyTimeout

	return backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		conn, err := pgx.Connect(pingCtx, c.dsn)
		if err != nil {
			return err
		}
		defer conn.Close(context.Background())
		var one int
		return conn.QueryRow(pingCtx, "SELECT 1").Scan(&one)
	}, backoff.WithContext(policy, ctx))
}

// bootstrap provisions the server's default tenant, which also proves the
// embedded migrations apply on a clean database.
func (c *pgContainer) bootstrap(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, c.dsn)
	if err != nil {
		return fmt.Errorf("bootstrap connect: %w", err)
	}
	defer pool.Close()
	if err := db.CreateTenantSchema(ctx, pool, "default", migrations.FS); err != nil {
		return fmt.Errorf("bootstrap default tenant: %w", err)
	}
	return nil
}

func (c *pgContainer) stop() {
	_, _ = docker(context.Background(), "rm", "-f", c.id)
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
