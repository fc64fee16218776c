// Package sdv runs Static Driver Verifier over a driver module through the
// project's build wrapper and collects the resulting Driver Verification
// Log (DVL).
package sdv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/drvbuild/internal/msbuild"
)

// SDV always runs against the Windows 8 x64 release configuration.
const (
	Release  = "Windows 8"
	Platform = "x64"
)

// Artifacts left in a module directory by a previous SDV run.
var (
	staleDirs  = []string{"sdv", "sdv.temp"}
	staleFiles = []string{"staticdv.job", "refine.sdv", "sdv-map.h"}
)

// Verifier runs SDV for modules of one toolset tree.
type Verifier struct {
	Runner  *msbuild.Runner
	Toolset string

	// Out receives the rule map echoed after the scan pass.
	Out io.Writer
}

// Verify runs the full SDV sequence for module and copies its DVL into
// destDir (relative paths resolve against the project root).
func (v *Verifier) Verify(ctx context.Context, module, destDir string) error {
	projectDir := filepath.Join(v.Runner.Root, v.Toolset, module)
	project := module + ".vcxproj"
	configuration := msbuild.Configuration(Release, false)

	run := func(target, extra string) error {
		return v.Runner.Run(ctx, msbuild.Invocation{
			Platform:      Platform,
			Configuration: configuration,
			Target:        target,
			File:          project,
			Extra:         extra,
			Dir:           projectDir,
		})
	}

	if err := run("Build", ""); err != nil {
		return err
	}

	if err := Clean(projectDir); err != nil {
		return err
	}

	if err := run("sdv", `/p:Inputs="/scan"`); err != nil {
		return err
	}
	if err := v.echo(filepath.Join(projectDir, "sdv-map.h")); err != nil {
		return err
	}

	if err := run("sdv", `/p:Inputs="/check:default.sdv"`); err != nil {
		return err
	}
	if err := RemoveTimestamps(filepath.Join(projectDir, "sdv", "SDV.DVL.xml")); err != nil {
		return err
	}

	if err := run("dvl", ""); err != nil {
		return err
	}
	if !filepath.IsAbs(destDir) {
		destDir = filepath.Join(v.Runner.Root, destDir)
	}
	if err := copyFile(filepath.Join(projectDir, module+".DVL.XML"), destDir); err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(projectDir, "refine.sdv")); err == nil {
		if err := run("sdv", "/p:Inputs=/refine"); err != nil {
			return err
		}
	}
	return nil
}

// Clean removes the artifacts of a previous SDV run from projectDir.
// Artifacts that do not exist are ignored.
func Clean(projectDir string) error {
	for _, name := range staleDirs {
		path := filepath.Join(projectDir, name)
		slog.Debug("sdv clean", "path", path)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("sdv clean: %w", err)
		}
	}
	for _, name := range staleFiles {
		path := filepath.Join(projectDir, name)
		slog.Debug("sdv clean", "path", path)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("sdv clean: %w", err)
		}
	}
	return nil
}

// RemoveTimestamps strips every line containing "TimeStamp" from the file
// at path so that repeated runs produce identical logs. The untouched file
// is kept alongside as path+".orig".
func RemoveTimestamps(path string) error {
	orig := path + ".orig"
	if err := os.Remove(orig); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", orig, err)
	}
	if err := os.Rename(path, orig); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	src, err := os.Open(orig)
	if err != nil {
		return fmt.Errorf("open %s: %w", orig, err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	br := bufio.NewReader(src)
	bw := bufio.NewWriter(dst)
	for {
		line, rerr := br.ReadString('\n')
		if line != "" && !strings.Contains(line, "TimeStamp") {
			if _, err := bw.WriteString(line); err != nil {
				dst.Close()
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			dst.Close()
			return fmt.Errorf("read %s: %w", orig, rerr)
		}
	}
	if err := bw.Flush(); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return dst.Close()
}

func (v *Verifier) echo(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rule map: %w", err)
	}
	if v.Out != nil {
		if _, err := v.Out.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, destDir string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", destDir, err)
	}
	dst := filepath.Join(destDir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
