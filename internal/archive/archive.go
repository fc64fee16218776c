// Package archive packages the source manifest and build outputs of a
// driver build as tarballs.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/roach88/drvbuild/internal/executor"
)

// Manifest lists the files tracked at HEAD of the git repository in dir.
func Manifest(ctx context.Context, exec executor.Executor, dir string) ([]string, error) {
	out, err := exec.Output(ctx, executor.Command{
		Path: "git",
		Args: []string{"ls-tree", "-r", "--name-only", "HEAD"},
		Dir:  dir,
	})
	if err != nil {
		return nil, fmt.Errorf("git ls-tree in %s: %w", dir, err)
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// Result summarises a written archive.
type Result struct {
	Path    string   `json:"path"`
	Entries int      `json:"entries"`
	Skipped []string `json:"skipped,omitempty"`
}

// Write creates the tarball filename holding names, resolved against root
// and stored under their relative names. Directories are added recursively.
// Names that cannot be read are skipped and reported in Result.Skipped.
func Write(filename, root string, names []string, compress bool) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	var (
		w  io.Writer = f
		gz *gzip.Writer
	)
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	tw := tar.NewWriter(w)

	res := &Result{Path: filename}
	for _, name := range names {
		n, err := addTree(tw, root, name, filename)
		res.Entries += n
		if err != nil {
			slog.Warn("skipping archive entry", "archive", filename, "name", name, "error", err)
			res.Skipped = append(res.Skipped, name)
		}
	}

	if err := tw.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("finish tar: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return nil, fmt.Errorf("finish gzip: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return res, nil
}

// addTree writes name and, for directories, everything below it. The
// archive being written is never added to itself.
func addTree(tw *tar.Writer, root, name, self string) (int, error) {
	start := filepath.Join(root, filepath.FromSlash(name))
	selfAbs, _ := filepath.Abs(self)

	count := 0
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if abs, _ := filepath.Abs(path); abs == selfAbs {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		added, err := addEntry(tw, path, filepath.ToSlash(rel), d)
		if err != nil {
			return err
		}
		if added {
			count++
		}
		return nil
	})
	return count, err
}

// addEntry writes one directory, regular file or symlink. Symlinks are
// stored as links, not followed. Other file types are left out and
// reported as not added.
func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) (bool, error) {
	info, err := d.Info()
	if err != nil {
		return false, err
	}

	var link string
	switch mode := info.Mode(); {
	case mode&fs.ModeSymlink != 0:
		if link, err = os.Readlink(path); err != nil {
			return false, err
		}
	case mode.IsRegular(), mode.IsDir():
	default:
		slog.Debug("not archiving special file", "path", path, "mode", mode)
		return false, nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return false, err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return true, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer src.Close()

	_, err = io.Copy(tw, src)
	return err == nil, err
}
