package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/drvbuild/internal/testutil"
)

func runHeaderCmd(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts := &HeaderOptions{
		RootOptions: &RootOptions{Format: "text"},
		Env: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		Now: testutil.NewFixedClock(buildTime).Now,
	}
	cmd := newHeaderCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestHeader_Stdout(t *testing.T) {
	out, err := runHeaderCmd(t, map[string]string{"BUILD_NUMBER": "41", "VENDOR_DEVICE_ID": "C000"},
		"--root", t.TempDir(), "--out", "-")
	require.NoError(t, err)

	assert.Contains(t, out, "#define VENDOR_DEVICE_ID_STR\t\"C000\"\n")
	assert.Contains(t, out, "#define BUILD_NUMBER\t\t41\n")
	assert.Contains(t, out, "#define YEAR\t\t\t2024\n")
}

func TestHeader_DefaultPathUsesCounterWithoutAdvancing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".build_number"), []byte("17"), 0644))

	out, err := runHeaderCmd(t, nil, "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "8.2.0.17")

	header, err := os.ReadFile(filepath.Join(root, "include", "version.h"))
	require.NoError(t, err)
	assert.Contains(t, string(header), "#define BUILD_NUMBER_STR\t\"17\"\n")

	counter, err := os.ReadFile(filepath.Join(root, ".build_number"))
	require.NoError(t, err)
	assert.Equal(t, "17", string(counter))
}

func TestHeader_ExplicitOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.h")

	_, err := runHeaderCmd(t, map[string]string{"BUILD_NUMBER": "3"}, "--root", t.TempDir(), "--out", path)
	require.NoError(t, err)

	header, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(header), "VENDOR_DEVICE_ID")
	assert.Contains(t, string(header), "#define BUILD_NUMBER\t\t3\n")
}

func TestHeader_BadBuildNumber(t *testing.T) {
	_, err := runHeaderCmd(t, map[string]string{"BUILD_NUMBER": "tip"}, "--root", t.TempDir(), "--out", "-")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
