// Package version owns the build identity of a driver build: the local
// build-number counter, the generated C version header, and the revision
// marker shipped with the output archive.
package version

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CounterFile is the default name of the build-number counter.
const CounterFile = ".build_number"

// HeaderPath is the header location relative to the project root.
const HeaderPath = "include/version.h"

// RevisionFile is the revision marker name relative to the project root.
const RevisionFile = "revision"

// Info identifies a build. VendorDeviceID is optional; empty means unset.
type Info struct {
	VendorName     string `json:"vendor_name"`
	VendorPrefix   string `json:"vendor_prefix"`
	VendorDeviceID string `json:"vendor_device_id,omitempty"`
	ProductName    string `json:"product_name"`
	Major          string `json:"major"`
	Minor          string `json:"minor"`
	Micro          string `json:"micro"`
	Build          string `json:"build"`
}

// String returns the dotted four-part version, e.g. "8.2.0.41".
func (i Info) String() string {
	return strings.Join([]string{i.Major, i.Minor, i.Micro, i.Build}, ".")
}

// CurrentBuildNumber returns the number stored in the counter file at path
// without advancing it. A missing or empty file counts as 0.
func CurrentBuildNumber(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read build number: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse build number %q: %w", text, err)
	}
	return n, nil
}

// NextBuildNumber returns the number stored in the counter file at path and
// stores its successor. A missing file counts as 0.
//
// The read and the write are not locked; two concurrent builds on the same
// tree can hand out the same number.
func NextBuildNumber(path string) (int, error) {
	current, err := CurrentBuildNumber(path)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(current+1)), 0644); err != nil {
		return 0, fmt.Errorf("write build number: %w", err)
	}
	return current, nil
}

// WriteHeader emits the preprocessor definitions for info, dated now.
func WriteHeader(w io.Writer, info Info, now time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "#define VENDOR_NAME_STR\t\t%s\n", cString(info.VendorName))
	fmt.Fprintf(bw, "#define VENDOR_PREFIX_STR\t%s\n", cString(info.VendorPrefix))
	if info.VendorDeviceID != "" {
		fmt.Fprintf(bw, "#define VENDOR_DEVICE_ID_STR\t%s\n", cString(info.VendorDeviceID))
	}
	fmt.Fprintf(bw, "#define PRODUCT_NAME_STR\t%s\n", cString(info.ProductName))
	fmt.Fprintln(bw)

	pair := func(name, tabs, strTabs, value string) {
		fmt.Fprintf(bw, "#define %s%s%s\n", name, tabs, value)
		fmt.Fprintf(bw, "#define %s_STR%s%s\n", name, strTabs, cString(value))
		fmt.Fprintln(bw)
	}

	pair("MAJOR_VERSION", "\t\t", "\t", info.Major)
	pair("MINOR_VERSION", "\t\t", "\t", info.Minor)
	pair("MICRO_VERSION", "\t\t", "\t", info.Micro)
	pair("BUILD_NUMBER", "\t\t", "\t", info.Build)

	pair("YEAR", "\t\t\t", "\t\t", strconv.Itoa(now.Year()))
	pair("MONTH", "\t\t\t", "\t\t", strconv.Itoa(int(now.Month())))
	pair("DAY", "\t\t\t", "\t\t\t", strconv.Itoa(now.Day()))

	return bw.Flush()
}

// cString wraps v in double quotes verbatim. Values are written as given,
// so escapes in a configured name reach the compiler unchanged.
func cString(v string) string {
	return `"` + v + `"`
}

// WriteHeaderFile writes the header to root/include/version.h, creating the
// include directory if needed.
func WriteHeaderFile(root string, info Info, now time.Time) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(HeaderPath))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create include dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create header: %w", err)
	}
	if err := WriteHeader(f, info, now); err != nil {
		f.Close()
		return "", fmt.Errorf("write header: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close header: %w", err)
	}
	return path, nil
}

// WriteRevision records the source revision next to the build outputs.
func WriteRevision(root, revision string) error {
	path := filepath.Join(root, RevisionFile)
	if err := os.WriteFile(path, []byte(revision+"\n"), 0644); err != nil {
		return fmt.Errorf("write revision: %w", err)
	}
	return nil
}
