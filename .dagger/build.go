package main

import (
	"fmt"
	"strings"
	"time"

	"context"

	"dagger/aide/internal/dagger"
)

// Build and return directory of go binaries
func (a *Aide) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// define build matrix
	gooses := []string{"linux", "darwin"}
	goarches := []string{"amd64", "arm64"}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	golang := dag.Container().
		From("golang:1.25-alpine").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithDirectory("/src", a.Source).
		WithWorkdir("/src")

	for _, goos := range gooses {
		for _, goarch := range goarches {
			// create directory for each OS and architecture
			path := fmt.Sprintf("%s/%s/", goos, goarch)

			// build artifact
			build := golang.
				WithEnvVariable("GOOS", goos).
				WithEnvVariable("GOARCH", goarch).
				WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/aide"}).
				WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/aideapi"})

			// add build to outputs
			outputs = outputs.WithDirectory(path, build.Directory(path))
		}
	}

	// return build directory
	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (a *Aide) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildDate := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/lodestarhq/aide/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/lodestarhq/aide/pkg/utils.Commit=%s'", commit),
		fmt.Sprintf("-X 'github.com/lodestarhq/aide/pkg/utils.BuildDate=%s'", buildDate),
	}

	return a.Build(ctx, strings.Join(ldflags, " "))
}
