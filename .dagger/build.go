package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/lmgate/internal/dagger"
)

// Build and return directory of go binaries
func (l *Lmgate) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// define build matrix
	gooses := []string{"linux"}
	goarches := []string{"amd64", "arm64"}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	// go-sqlite3 needs cgo, so each target gets a zig cross compiler.
	golang := l.goContainer().
		WithExec([]string{"apt-get", "install", "-y", "xz-utils", "curl"}).
		WithExec([]string{"sh", "-c", "curl -sSfL " + zigURL + " | tar -xJ -C /opt && ln -s /opt/zig-*/zig /usr/local/bin/zig"})

	for _, goos := range gooses {
		for _, goarch := range goarches {
			// create directory for each OS and architecture
			path := fmt.Sprintf("%s/%s/", goos, goarch)

			// build artifact
			build := golang.
				WithEnvVariable("GOOS", goos).
				WithEnvVariable("GOARCH", goarch).
				WithEnvVariable("CC", "zig cc -target "+zigTarget(goos, goarch)).
				WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/lmgate"})

			// add build to outputs
			outputs = outputs.WithDirectory(path, build.Directory(path))
		}
	}

	// return build directory
	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (l *Lmgate) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/lmgate/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/lmgate/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/lmgate/pkg/utils.Buildtime=%s'", buildtime),
	}

	return l.Build(ctx, strings.Join(ldflags, " "))
}

const zigURL = "https://ziglang.org/download/0.14.1/zig-x86_64-linux-0.14.1.tar.xz"

func zigTarget(goos, goarch string) string {
	arch := "x86_64"
	if goarch == "arm64" {
		arch = "aarch64"
	}
	return arch + "-" + goos + "-gnu"
}
