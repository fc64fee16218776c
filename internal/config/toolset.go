package config

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/drvbuild/internal/executor"
)

// toolsets maps VisualStudioVersion to the solution directory name.
var toolsets = map[string]string{
	"11.0": "vs2012",
	"12.0": "vs2013",
}

// DetectToolset asks the Visual Studio installation at vsDir which version
// it is by dumping the environment vcvarsall.bat sets up.
func DetectToolset(ctx context.Context, exec executor.Executor, vsDir string) (string, error) {
	vcvars := filepath.Join(vsDir, "VC", "vcvarsall.bat")
	out, err := exec.Output(ctx, executor.Command{
		Path: "cmd",
		Args: []string{"/c", vcvars, "&&", "set"},
	})
	if err != nil {
		return "", fmt.Errorf("run vcvarsall: %w", err)
	}
	return ToolsetFromEnvDump(out)
}

// ToolsetFromEnvDump picks the toolset out of `set` output.
func ToolsetFromEnvDump(dump []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(dump))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || strings.HasPrefix(key, "?") {
			continue
		}
		if strings.TrimSpace(key) != "VisualStudioVersion" {
			continue
		}
		value = strings.TrimSpace(value)
		if toolset, ok := toolsets[value]; ok {
			return toolset, nil
		}
		return "", fmt.Errorf("unsupported VisualStudioVersion %q", value)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("VisualStudioVersion not set by vcvarsall")
}
