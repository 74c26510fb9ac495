package binary

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ZebulonRouseFrantzich/promctl/internal/platform"
)

func TestDescriptor_LinuxAMD64(t *testing.T) {
	d, err := NewDescriptor(Prometheus, "2.10.0", &platform.Info{OS: "linux", Arch: "amd64"})
	require.NoError(t, err)

	assert.Equal(t, "prometheus-2.10.0.linux-amd64.tar.gz", d.ArchiveName())
	assert.Equal(t,
		"https://github.com/prometheus/prometheus/releases/download/v2.10.0/prometheus-2.10.0.linux-amd64.tar.gz",
		d.DownloadURL(DefaultReleaseHost))
	assert.Equal(t,
		"https://github.com/prometheus/prometheus/releases/download/v2.10.0/sha256sums.txt",
		d.ChecksumURL(DefaultReleaseHost))
	assert.Equal(t, filepath.Join("/opt/bin", "prometheus"), d.InstallPath("/opt/bin"))
	assert.Equal(t,
		filepath.Join("/opt/bin", "prometheus-2.10.0.linux-amd64", "prometheus"),
		d.ExtractedBinaryPath("/opt/bin"))
}

func TestNewDescriptor(t *testing.T) {
	linux := &platform.Info{OS: "linux", Arch: "arm64"}

	tests := []struct {
		name        string
		binary      string
		version     string
		info        *platform.Info
		wantVersion string
		wantErr     bool
	}{
		{name: "plain", binary: Prometheus, version: "2.53.1", info: linux, wantVersion: "2.53.1"},
		{name: "leading_v", binary: Prometheus, version: "v3.0.0", info: linux, wantVersion: "3.0.0"},
		{name: "empty_version", binary: Prometheus, version: " ", info: linux, wantErr: true},
		{name: "empty_name", binary: "", version: "2.0.0", info: linux, wantErr: true},
		{name: "nil_platform", binary: Prometheus, version: "2.0.0", info: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor(tt.binary, tt.version, tt.info)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, d.Version)
			assert.Equal(t, DefaultArchiveExt, d.ArchiveExt)
		})
	}
}

func TestDescriptor_Windows(t *testing.T) {
	d := Descriptor{Name: Prometheus, Version: "2.10.0", OS: "windows", Arch: "amd64", ArchiveExt: "zip"}

	assert.Equal(t, "prometheus-2.10.0.windows-amd64.zip", d.ArchiveName())
	assert.Equal(t, "prometheus.exe", d.BinaryName())
	assert.Equal(t, filepath.Join("base", "prometheus.exe"), d.InstallPath("base"))
}

func TestDescriptor_TrailingSlashHost(t *testing.T) {
	d := Descriptor{Name: Prometheus, Version: "2.10.0", OS: "linux", Arch: "amd64"}

	assert.Equal(t,
		"http://mirror.local/v2.10.0/prometheus-2.10.0.linux-amd64.tar.gz",
		d.DownloadURL("http://mirror.local/"))
}

func descriptorGen() *rapid.Generator[Descriptor] {
	return rapid.Custom(func(t *rapid.T) Descriptor {
		return Descriptor{
			Name:    rapid.StringMatching(`[a-z][a-z_]{0,15}`).Draw(t, "name"),
			Version: rapid.StringMatching(`[0-9]{1,2}\.[0-9]{1,2}\.[0-9]{1,2}`).Draw(t, "version"),
			OS:      rapid.SampledFrom([]string{"linux", "darwin", "freebsd", "netbsd", "openbsd"}).Draw(t, "os"),
			Arch:    rapid.SampledFrom([]string{"amd64", "arm64", "386", "armv7", "ppc64le", "s390x"}).Draw(t, "arch"),
		}
	})
}

func TestDescriptor_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := descriptorGen().Draw(t, "descriptor")
		host := rapid.SampledFrom([]string{DefaultReleaseHost, "http://127.0.0.1:9999"}).Draw(t, "host")
		base := rapid.SampledFrom([]string{"/var/lib/promctl", "/tmp/x"}).Draw(t, "base")

		archive := d.ArchiveName()
		want := d.Name + "-" + d.Version + "." + d.OS + "-" + d.Arch + ".tar.gz"
		if archive != want {
			t.Fatalf("ArchiveName() = %q, want %q", archive, want)
		}

		url := d.DownloadURL(host)
		if !strings.HasPrefix(url, host+"/v"+d.Version+"/") {
			t.Fatalf("DownloadURL() = %q lacks host/version prefix", url)
		}
		if !strings.HasSuffix(url, "/"+archive) {
			t.Fatalf("DownloadURL() = %q does not end in archive name", url)
		}

		if got := d.InstallPath(base); got != filepath.Join(base, d.Name) {
			t.Fatalf("InstallPath() = %q", got)
		}
		if got := filepath.Dir(d.ExtractedBinaryPath(base)); got != filepath.Join(base, d.Key()) {
			t.Fatalf("ExtractedBinaryPath() dir = %q", got)
		}

		// Pure: same input, same output.
		if d.DownloadURL(host) != url || d.ArchiveName() != archive {
			t.Fatal("descriptor derivations are not deterministic")
		}
	})
}

func TestNewDescriptor_WindowsUsesZip(t *testing.T) {
	d, err := NewDescriptor(Prometheus, "2.10.0", &platform.Info{OS: "windows", Arch: "amd64"})
	require.NoError(t, err)

	assert.Equal(t, "prometheus-2.10.0.windows-amd64.zip", d.ArchiveName())
	assert.Equal(t, "prometheus.exe", d.BinaryName())
}
