package msbuild

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/drvbuild/internal/executor"
	"github.com/roach88/drvbuild/internal/testutil"
)

func TestConfiguration(t *testing.T) {
	assert.Equal(t, "Windows 7 Debug", Configuration("Windows 7", true))
	assert.Equal(t, "Windows Vista Release", Configuration("Windows Vista", false))
}

func TestPlatform(t *testing.T) {
	p, err := Platform("x86")
	require.NoError(t, err)
	assert.Equal(t, "Win32", p)

	p, err = Platform("x64")
	require.NoError(t, err)
	assert.Equal(t, "x64", p)

	_, err = Platform("arm64")
	require.Error(t, err)
}

func TestTargetPath(t *testing.T) {
	got, err := TargetPath("vs2013", "Windows 7", "x86", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("vs2013", "Windows7Debug", "Win32"), got)

	got, err = TargetPath("vs2012", "Windows Vista", "x64", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("vs2012", "WindowsVistaRelease", "x64"), got)
}

func TestRelease(t *testing.T) {
	assert.Equal(t, "Windows Vista", Release("vs2012"))
	assert.Equal(t, "Windows 7", Release("vs2013"))
}

func TestRunner_BuildSolution(t *testing.T) {
	fake := testutil.NewFakeExecutor()
	r := &Runner{Root: "/src/xenbus", Exec: fake}

	require.NoError(t, r.BuildSolution(context.Background(), "xenbus", "vs2013", "Windows 7", "x86", false))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	cmd := calls[0]
	assert.Equal(t, filepath.Join("/src/xenbus", Script), cmd.Path)
	assert.Empty(t, cmd.Args)
	assert.Equal(t, filepath.Join("/src/xenbus", "vs2013"), cmd.Dir)
	assert.Equal(t, "Win32", testutil.EnvValue(cmd, "PLATFORM"))
	assert.Equal(t, "Windows 7 Release", testutil.EnvValue(cmd, "CONFIGURATION"))
	assert.Equal(t, "Build", testutil.EnvValue(cmd, "TARGET"))
	assert.Equal(t, "xenbus.sln", testutil.EnvValue(cmd, "FILE"))
	assert.Contains(t, cmd.Env, "EXTRA=")
}

func TestRunner_NonZeroExitIsBuildFailure(t *testing.T) {
	fake := testutil.NewFakeExecutor()
	fake.OnRun = func(cmd executor.Command) error { return testutil.ExitStatus(cmd, 1) }
	r := &Runner{Root: "/src", Exec: fake}

	err := r.BuildSolution(context.Background(), "xenbus", "vs2013", "Windows 7", "x64", true)
	require.Error(t, err)
	assert.True(t, IsBuildFailure(err))

	var bf *BuildFailure
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &bf))
	assert.Equal(t, "Windows 7 Debug", bf.Configuration)
	assert.Equal(t, 1, bf.Status)
	assert.Contains(t, err.Error(), "Windows 7 Debug")
}

func TestRunner_StartFailureIsNotBuildFailure(t *testing.T) {
	fake := testutil.NewFakeExecutor()
	fake.OnRun = func(executor.Command) error { return errors.New("exec: not found") }
	r := &Runner{Root: "/src", Exec: fake}

	err := r.Run(context.Background(), Invocation{Configuration: "Windows 8 Release"})
	require.Error(t, err)
	assert.False(t, IsBuildFailure(err))
	assert.Contains(t, err.Error(), "Windows 8 Release")
}

func TestRunner_UnknownArchitecture(t *testing.T) {
	fake := testutil.NewFakeExecutor()
	r := &Runner{Root: "/src", Exec: fake}

	err := r.BuildSolution(context.Background(), "xenbus", "vs2013", "Windows 7", "ia64", false)
	require.Error(t, err)
	assert.Empty(t, fake.Calls())
}
