// Package descriptor fills @TOKEN@ placeholders in driver installation
// descriptor templates (src/<driver>.inf) with the build identity.
package descriptor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/drvbuild/internal/version"
)

// Token names recognised in templates.
const (
	TokenMajorVersion   = "@MAJOR_VERSION@"
	TokenMinorVersion   = "@MINOR_VERSION@"
	TokenMicroVersion   = "@MICRO_VERSION@"
	TokenBuildNumber    = "@BUILD_NUMBER@"
	TokenVendorName     = "@VENDOR_NAME@"
	TokenProductName    = "@PRODUCT_NAME@"
	TokenVendorDeviceID = "@VENDOR_DEVICE_ID@"
)

// Substitute copies the template in r to w line by line, replacing every
// token with its value from info. A line mentioning @VENDOR_DEVICE_ID@ is
// dropped entirely when info has no device id.
func Substitute(r io.Reader, w io.Writer, info version.Info) error {
	replacer := strings.NewReplacer(
		TokenMajorVersion, info.Major,
		TokenMinorVersion, info.Minor,
		TokenMicroVersion, info.Micro,
		TokenBuildNumber, info.Build,
		TokenVendorName, info.VendorName,
		TokenProductName, info.ProductName,
		TokenVendorDeviceID, info.VendorDeviceID,
	)

	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if !(info.VendorDeviceID == "" && strings.Contains(line, TokenVendorDeviceID)) {
				if _, werr := bw.WriteString(replacer.Replace(line)); werr != nil {
					return werr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
	}
	return bw.Flush()
}

// CopyINF renders root/src/<name>.inf into root/<toolset>/<name>.inf and
// returns the output path.
func CopyINF(root, toolset, name string, info version.Info) (string, error) {
	src := filepath.Join(root, "src", name+".inf")
	dst := filepath.Join(root, toolset, name+".inf")

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open template: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", toolset, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create descriptor: %w", err)
	}
	if err := Substitute(in, out, info); err != nil {
		out.Close()
		return "", fmt.Errorf("render %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close descriptor: %w", err)
	}
	return dst, nil
}
