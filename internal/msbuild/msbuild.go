// Package msbuild describes invocations of the project's msbuild.bat
// wrapper and reports failed builds by configuration name.
//
// msbuild.bat reads its parameters from PLATFORM, CONFIGURATION, TARGET,
// FILE and EXTRA. Those are set on the child process only; the parent
// environment is never modified.
package msbuild

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/drvbuild/internal/executor"
)

// Script is the wrapper batch file name in the project root.
const Script = "msbuild.bat"

// Architectures supported by the solution, in build order.
var Architectures = []string{"x86", "x64"}

// Invocation is one call of the build wrapper.
type Invocation struct {
	Platform      string
	Configuration string
	Target        string
	File          string
	Extra         string
	Dir           string
}

// Env returns the KEY=VALUE pairs passed to msbuild.bat.
func (inv Invocation) Env() []string {
	return []string{
		"PLATFORM=" + inv.Platform,
		"CONFIGURATION=" + inv.Configuration,
		"TARGET=" + inv.Target,
		"FILE=" + inv.File,
		"EXTRA=" + inv.Extra,
	}
}

// BuildFailure reports a build wrapper run that exited non-zero.
type BuildFailure struct {
	Configuration string
	Target        string
	File          string
	Status        int
}

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("build failed: %s (%s %s, status %d)", e.Configuration, e.Target, e.File, e.Status)
}

// IsBuildFailure reports whether err carries a *BuildFailure.
func IsBuildFailure(err error) bool {
	var bf *BuildFailure
	return errors.As(err, &bf)
}

// Configuration names a solution configuration, e.g. "Windows 7 Debug".
func Configuration(release string, debug bool) string {
	if debug {
		return release + " Debug"
	}
	return release + " Release"
}

// Platform maps an architecture to its solution platform name.
func Platform(arch string) (string, error) {
	switch arch {
	case "x86":
		return "Win32", nil
	case "x64":
		return "x64", nil
	default:
		return "", fmt.Errorf("unsupported architecture %q", arch)
	}
}

// TargetPath is the output directory of a configuration, relative to the
// project root: <toolset>/<ConfigurationWithoutSpaces>/<Platform>.
func TargetPath(toolset, release, arch string, debug bool) (string, error) {
	platform, err := Platform(arch)
	if err != nil {
		return "", err
	}
	name := strings.ReplaceAll(Configuration(release, debug), " ", "")
	return filepath.Join(toolset, name, platform), nil
}

// Release picks the target OS release for a Visual Studio toolset.
func Release(toolset string) string {
	if toolset == "vs2012" {
		return "Windows Vista"
	}
	return "Windows 7"
}

// Runner launches the build wrapper of a project.
type Runner struct {
	// Root is the project root containing msbuild.bat.
	Root string
	Exec executor.Executor
}

// Run executes inv and converts a non-zero exit into *BuildFailure.
func (r *Runner) Run(ctx context.Context, inv Invocation) error {
	cmd := executor.Command{
		Path: filepath.Join(r.Root, Script),
		Dir:  inv.Dir,
		Env:  inv.Env(),
	}

	err := r.Exec.Run(ctx, cmd)
	if err == nil {
		return nil
	}

	var exitErr *executor.ExitError
	if errors.As(err, &exitErr) {
		return &BuildFailure{
			Configuration: inv.Configuration,
			Target:        inv.Target,
			File:          inv.File,
			Status:        exitErr.Status,
		}
	}
	return fmt.Errorf("run %s for %s: %w", Script, inv.Configuration, err)
}

// BuildSolution builds <name>.sln for one architecture from <root>/<toolset>.
func (r *Runner) BuildSolution(ctx context.Context, name, toolset, release, arch string, debug bool) error {
	platform, err := Platform(arch)
	if err != nil {
		return err
	}
	return r.Run(ctx, Invocation{
		Platform:      platform,
		Configuration: Configuration(release, debug),
		Target:        "Build",
		File:          name + ".sln",
		Dir:           filepath.Join(r.Root, toolset),
	})
}
