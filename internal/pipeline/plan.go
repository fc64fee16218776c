package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/drvbuild/internal/archive"
	"github.com/roach88/drvbuild/internal/config"
	"github.com/roach88/drvbuild/internal/descriptor"
	"github.com/roach88/drvbuild/internal/executor"
	"github.com/roach88/drvbuild/internal/msbuild"
	"github.com/roach88/drvbuild/internal/sdv"
	"github.com/roach88/drvbuild/internal/symstore"
	"github.com/roach88/drvbuild/internal/version"
)

// Step names. Per-architecture and per-module steps append "-<arch>" or
// "-<module>".
const (
	StepRevision      = "revision"
	StepVersionHeader = "version-header"
	StepDescriptor    = "descriptor"
	StepExpireSymbols = "symbols-expire"
	StepBuild         = "build"
	StepPublish       = "symbols-add"
	StepVerify        = "sdv"
	StepArchiveSource = "archive-source"
	StepArchiveOutput = "archive-output"
)

// Deps are the capabilities the plan's steps use.
type Deps struct {
	Exec executor.Executor

	// Now defaults to time.Now.
	Now func() time.Time

	// Out receives console output produced by the steps themselves.
	Out io.Writer
}

// Plan builds the fixed step list for cfg:
//
//	revision? → version-header → descriptor → symbols-expire →
//	build-<arch>... → symbols-add-<arch>... → sdv-<module>...? →
//	archive-source → archive-output
//
// cfg must carry a build number and a toolset.
func Plan(cfg config.Config, deps Deps) ([]Step, error) {
	if cfg.Info.Build == "" {
		return nil, errors.New("plan: build number not resolved")
	}
	if cfg.Toolset == "" {
		return nil, errors.New("plan: toolset not resolved")
	}
	if deps.Exec == nil {
		return nil, errors.New("plan: no executor")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	out := deps.Out
	if out == nil {
		out = io.Discard
	}

	runner := &msbuild.Runner{Root: cfg.Root, Exec: deps.Exec}
	tool := &symstore.Tool{
		Path:   symstore.ToolPath(cfg.Kit, cfg.HostArch),
		Server: cfg.SymbolServer,
		Exec:   deps.Exec,
	}
	release := cfg.Release()

	var steps []Step

	if cfg.GitRevision != "" {
		steps = append(steps, Step{
			Name: StepRevision,
			Run: func(context.Context) error {
				return version.WriteRevision(cfg.Root, cfg.GitRevision)
			},
		})
	}

	steps = append(steps,
		Step{
			Name: StepVersionHeader,
			Run: func(context.Context) error {
				path, err := version.WriteHeaderFile(cfg.Root, cfg.Info, now())
				if err != nil {
					return err
				}
				slog.Debug("wrote version header", "path", path)
				return nil
			},
		},
		Step{
			Name: StepDescriptor,
			Run: func(context.Context) error {
				path, err := descriptor.CopyINF(cfg.Root, cfg.Toolset, cfg.Driver, cfg.Info)
				if err != nil {
					return err
				}
				slog.Debug("wrote descriptor", "path", path)
				return nil
			},
		},
		Step{
			Name: StepExpireSymbols,
			Run: func(ctx context.Context) error {
				return expireSymbols(ctx, tool, cfg.Driver, cfg.Retention, now().UTC())
			},
		},
	)

	var builds []string
	for _, arch := range cfg.Architectures {
		name := StepBuild + "-" + arch
		builds = append(builds, name)
		steps = append(steps, Step{
			Name:      name,
			DependsOn: []string{StepVersionHeader, StepDescriptor},
			Run: func(ctx context.Context) error {
				return runner.BuildSolution(ctx, cfg.Driver, cfg.Toolset, release, arch, cfg.Debug)
			},
		})
	}

	for _, arch := range cfg.Architectures {
		steps = append(steps, Step{
			Name:      StepPublish + "-" + arch,
			DependsOn: []string{StepBuild + "-" + arch},
			Run: func(ctx context.Context) error {
				target, err := msbuild.TargetPath(cfg.Toolset, release, arch, cfg.Debug)
				if err != nil {
					return err
				}
				return tool.Add(ctx, filepath.Join(cfg.Root, target), cfg.Driver, cfg.Info.String())
			},
		})
	}

	if cfg.SDV {
		verifier := &sdv.Verifier{Runner: runner, Toolset: cfg.Toolset, Out: out}
		for _, module := range cfg.SDVModules {
			steps = append(steps, Step{
				Name:      StepVerify + "-" + module,
				DependsOn: []string{StepVersionHeader, StepDescriptor},
				Run: func(ctx context.Context) error {
					return verifier.Verify(ctx, module, cfg.Driver)
				},
			})
		}
	}

	steps = append(steps,
		Step{
			Name: StepArchiveSource,
			Run: func(ctx context.Context) error {
				files, err := archive.Manifest(ctx, deps.Exec, cfg.Root)
				if err != nil {
					return err
				}
				res, err := archive.Write(filepath.Join(cfg.Root, cfg.Driver, "source.tgz"), cfg.Root, files, true)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, res.Path)
				return nil
			},
		},
		Step{
			Name:      StepArchiveOutput,
			DependsOn: append([]string{StepArchiveSource}, builds...),
			Run: func(context.Context) error {
				res, err := archive.Write(filepath.Join(cfg.Root, cfg.Driver+".tar"), cfg.Root,
					[]string{cfg.Driver, version.RevisionFile}, false)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, res.Path)
				return nil
			},
		},
	)

	return steps, nil
}

// expireSymbols deletes every transaction of tag older than retention.
func expireSymbols(ctx context.Context, tool *symstore.Tool, tag string, retention time.Duration, now time.Time) error {
	ids, lineErrs, err := symstore.ExpiredFromServer(tool.Server, tag, retention, now)
	for _, le := range lineErrs {
		slog.Warn("skipping malformed history line", "line", le.Line, "reason", le.Message)
	}
	if err != nil {
		return err
	}

	slog.Info("expired symbols", "tag", tag, "count", len(ids))
	for _, id := range ids {
		if err := tool.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
