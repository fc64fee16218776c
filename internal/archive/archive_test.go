package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/drvbuild/internal/executor"
	"github.com/roach88/drvbuild/internal/testutil"
)

func readTar(t *testing.T, path string, compressed bool) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var r io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		defer gz.Close()
		r = gz
	}

	entries := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(data)
	}
	return entries
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestManifest(t *testing.T) {
	fake := testutil.NewFakeExecutor()
	fake.OnOutput = func(cmd executor.Command) ([]byte, error) {
		return []byte("build.py\r\nsrc/xenbus/fdo.c\n\ninclude/xen.h\n"), nil
	}

	files, err := Manifest(context.Background(), fake, "/src/xenbus")
	require.NoError(t, err)
	assert.Equal(t, []string{"build.py", "src/xenbus/fdo.c", "include/xen.h"}, files)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "git", calls[0].Path)
	assert.Equal(t, []string{"ls-tree", "-r", "--name-only", "HEAD"}, calls[0].Args)
	assert.Equal(t, "/src/xenbus", calls[0].Dir)
}

func TestManifest_GitFailure(t *testing.T) {
	fake := testutil.NewFakeExecutor()
	fake.OnOutput = func(cmd executor.Command) ([]byte, error) {
		return nil, testutil.ExitStatus(cmd, 128)
	}

	_, err := Manifest(context.Background(), fake, "/src")
	require.Error(t, err)
	assert.Equal(t, 128, executor.Status(err))
}

func TestWrite_CompressedManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "build.py"), "print()\n")
	writeFile(t, filepath.Join(root, "src", "xenbus", "fdo.c"), "int x;\n")

	out := filepath.Join(root, "xenbus", "source.tgz")
	res, err := Write(out, root, []string{"build.py", "src/xenbus/fdo.c", "gone.c"}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entries)
	assert.Equal(t, []string{"gone.c"}, res.Skipped)

	entries := readTar(t, out, true)
	assert.Equal(t, map[string]string{
		"build.py":         "print()\n",
		"src/xenbus/fdo.c": "int x;\n",
	}, entries)
}

func TestWrite_DirectoryTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "xenbus", "x64", "xenbus.sys"), "sys")
	writeFile(t, filepath.Join(root, "xenbus", "xenbus.inf"), "inf")
	writeFile(t, filepath.Join(root, "revision"), "abc\n")

	out := filepath.Join(root, "xenbus.tar")
	res, err := Write(out, root, []string{"xenbus", "revision"}, false)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)

	entries := readTar(t, out, false)
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"revision",
		"xenbus/",
		"xenbus/x64/",
		"xenbus/x64/xenbus.sys",
		"xenbus/xenbus.inf",
	}, names)
	assert.Equal(t, "sys", entries["xenbus/x64/xenbus.sys"])
}

func TestWrite_DoesNotArchiveItself(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "out", "a.txt"), "a")

	out := filepath.Join(root, "out", "out.tar")
	_, err := Write(out, root, []string{"out"}, false)
	require.NoError(t, err)

	entries := readTar(t, out, false)
	assert.NotContains(t, entries, "out/out.tar")
	assert.Contains(t, entries, "out/a.txt")
}

func TestWrite_StoresSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "xenbus", "xenbus.inf"), "inf")
	if err := os.Symlink("xenbus.inf", filepath.Join(root, "xenbus", "latest.inf")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	out := filepath.Join(root, "xenbus.tar")
	res, err := Write(out, root, []string{"xenbus"}, false)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 3, res.Entries)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	links := make(map[string]string)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeSymlink {
			links[hdr.Name] = hdr.Linkname
		}
	}
	assert.Equal(t, map[string]string{"xenbus/latest.inf": "xenbus.inf"}, links)
}
