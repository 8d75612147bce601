// lmgate CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/lmgate/internal/dagger"
)

// Lmgate is the main module for the lmgate CI/CD pipeline
type Lmgate struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new lmgate CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Lmgate {
	return &Lmgate{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc,
// libsqlite3-dev, CGO enabled, and the project source mounted.
func (l *Lmgate) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", l.Source)
}

// Test runs the lmgate unit tests with the race detector.
//
// The postgres driver suite is skipped unless LMGATE_TEST_POSTGRES_DSN is set.
func (l *Lmgate) Test(ctx context.Context) (string, error) {
	return l.goContainer().
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}

// TestPostgres runs the postgres storage driver suite against a throwaway
// PostgreSQL service.
func (l *Lmgate) TestPostgres(ctx context.Context) (string, error) {
	db := dag.Container().
		From("postgres:17-alpine").
		WithEnvVariable("POSTGRES_PASSWORD", "lmgate").
		WithExposedPort(5432).
		AsService()

	return l.goContainer().
		WithServiceBinding("db", db).
		WithEnvVariable("LMGATE_TEST_POSTGRES_DSN", "postgres://postgres:lmgate@db:5432/postgres?sslmode=disable").
		WithExec([]string{"go", "test", "-v", "./pkg/storage/postgres/..."}).
		Stdout(ctx)
}
