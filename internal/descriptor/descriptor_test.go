package descriptor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/drvbuild/internal/version"
)

func testInfo() version.Info {
	return version.Info{
		VendorName:   "Xen Project",
		VendorPrefix: "XP",
		ProductName:  "Xen",
		Major:        "8",
		Minor:        "2",
		Micro:        "0",
		Build:        "41",
	}
}

func renderTemplate(t *testing.T, info version.Info) []byte {
	t.Helper()
	tmpl, err := os.ReadFile(filepath.Join("testdata", "xenbus.inf"))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Substitute(bytes.NewReader(tmpl), &out, info))
	return out.Bytes()
}

func TestSubstitute_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	g.Assert(t, "xenbus_no_device_id", renderTemplate(t, testInfo()))

	info := testInfo()
	info.VendorDeviceID = "C000"
	g.Assert(t, "xenbus_device_id", renderTemplate(t, info))
}

func TestSubstitute_UnsetDeviceIDDropsOnlyThatLine(t *testing.T) {
	in := "a=@MAJOR_VERSION@\nid=@VENDOR_DEVICE_ID@ @PRODUCT_NAME@\nb=@PRODUCT_NAME@"

	var out bytes.Buffer
	require.NoError(t, Substitute(strings.NewReader(in), &out, testInfo()))
	assert.Equal(t, "a=8\nb=Xen", out.String())
}

func TestSubstitute_RepeatedTokensAndUnknownTokens(t *testing.T) {
	in := "@BUILD_NUMBER@-@BUILD_NUMBER@ @UNKNOWN@ @VENDOR_NAME@\n"

	var out bytes.Buffer
	require.NoError(t, Substitute(strings.NewReader(in), &out, testInfo()))
	assert.Equal(t, "41-41 @UNKNOWN@ Xen Project\n", out.String())
}

func TestSubstitute_PreservesCRLF(t *testing.T) {
	in := "ver=@MICRO_VERSION@\r\nname=@PRODUCT_NAME@\r\n"

	var out bytes.Buffer
	require.NoError(t, Substitute(strings.NewReader(in), &out, testInfo()))
	assert.Equal(t, "ver=0\r\nname=Xen\r\n", out.String())
}

func TestCopyINF(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "xenbus.inf"),
		[]byte("DriverVer=@MAJOR_VERSION@.@MINOR_VERSION@\n"), 0644))

	dst, err := CopyINF(root, "vs2013", "xenbus", testInfo())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "vs2013", "xenbus.inf"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "DriverVer=8.2\n", string(data))
}

func TestCopyINF_MissingTemplate(t *testing.T) {
	_, err := CopyINF(t.TempDir(), "vs2013", "xenbus", testInfo())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open template")
}
