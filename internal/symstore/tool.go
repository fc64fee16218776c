package symstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/roach88/drvbuild/internal/executor"
)

// ToolPath locates symstore.exe inside the debugging tools of a kit. The
// host architecture picks the x86 or x64 build of the tool.
func ToolPath(kit, hostArch string) string {
	arch := "x64"
	if hostArch == "x86" {
		arch = "x86"
	}
	return filepath.Join(kit, "Debuggers", arch, "symstore.exe")
}

// Tool drives symstore.exe against one symbol server.
type Tool struct {
	Path   string
	Server string
	Exec   executor.Executor
}

// DeleteArgs builds the argument vector removing transaction id.
func (t *Tool) DeleteArgs(id string) []string {
	return []string{"del", "/i", id, "/s", t.Server}
}

// AddArgs builds the argument vector publishing every pdb below the
// working directory under tag and version.
func (t *Tool) AddArgs(tag, version string) []string {
	return []string{"add", "/s", t.Server, "/r", "/f", "*.pdb", "/t", tag, "/v", version}
}

// Delete removes one transaction from the store.
func (t *Tool) Delete(ctx context.Context, id string) error {
	cmd := executor.Command{Path: t.Path, Args: t.DeleteArgs(id)}
	if err := t.Exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("symstore del %s: %w", id, err)
	}
	return nil
}

// Add publishes the symbols found below dir.
func (t *Tool) Add(ctx context.Context, dir, tag, version string) error {
	cmd := executor.Command{Path: t.Path, Args: t.AddArgs(tag, version), Dir: dir}
	if err := t.Exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("symstore add %s %s: %w", tag, version, err)
	}
	return nil
}
