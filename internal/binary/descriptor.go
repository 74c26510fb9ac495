package binary

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/promctl/internal/platform"
)

const (
	// Prometheus is the upstream name of the Prometheus server binary.
	Prometheus = "prometheus"

	// DefaultReleaseHost is where Prometheus release archives are published.
	DefaultReleaseHost = "https://github.com/prometheus/prometheus/releases/download"

	// DefaultArchiveExt is the archive format used when a Descriptor does not
	// name one.
	DefaultArchiveExt = "tar.gz"

	checksumFile = "sha256sums.txt"
)

// Descriptor identifies one published build of a binary. It is a plain value;
// all paths and URLs are derived from it without I/O.
type Descriptor struct {
	Name       string // upstream binary name, e.g. "prometheus"
	Version    string // without the leading "v"
	OS         string // release OS name
	Arch       string // release arch name
	ArchiveExt string // "tar.gz" (default) or "zip"
}

// NewDescriptor builds a Descriptor for the given platform.
func NewDescriptor(name, version string, info *platform.Info) (Descriptor, error) {
	if info == nil {
		return Descriptor{}, fmt.Errorf("platform info is required")
	}
	if name == "" {
		return Descriptor{}, fmt.Errorf("binary name is required")
	}

	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return Descriptor{}, fmt.Errorf("version is required")
	}

	ext := DefaultArchiveExt
	if info.IsWindows() {
		// Windows releases ship as zip.
		ext = "zip"
	}

	return Descriptor{
		Name:       name,
		Version:    version,
		OS:         info.OS,
		Arch:       info.Arch,
		ArchiveExt: ext,
	}, nil
}

func (d Descriptor) archiveExt() string {
	if d.ArchiveExt == "" {
		return DefaultArchiveExt
	}
	return d.ArchiveExt
}

// Key returns "{name}-{version}.{os}-{arch}". It names the extracted
// directory and keys the install locks.
func (d Descriptor) Key() string {
	return fmt.Sprintf("%s-%s.%s-%s", d.Name, d.Version, d.OS, d.Arch)
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return d.Key()
}

// ArchiveName returns the release archive file name.
// Pattern: {name}-{version}.{os}-{arch}.{ext}
func (d Descriptor) ArchiveName() string {
	return d.Key() + "." + d.archiveExt()
}

func releaseDir(releaseHost, version string) string {
	return fmt.Sprintf("%s/v%s", strings.TrimRight(releaseHost, "/"), version)
}

// DownloadURL returns {releaseHost}/v{version}/{archive}.
func (d Descriptor) DownloadURL(releaseHost string) string {
	return releaseDir(releaseHost, d.Version) + "/" + d.ArchiveName()
}

// ChecksumURL returns the URL of the release's sha256sums.txt.
func (d Descriptor) ChecksumURL(releaseHost string) string {
	return releaseDir(releaseHost, d.Version) + "/" + checksumFile
}

// SignatureURL returns the URL of the archive's armored detached signature.
func (d Descriptor) SignatureURL(releaseHost string) string {
	return d.DownloadURL(releaseHost) + ".asc"
}

// BinaryName returns the executable's file name on the descriptor's OS.
func (d Descriptor) BinaryName() string {
	if d.OS == "windows" {
		return d.Name + ".exe"
	}
	return d.Name
}

// InstallPath returns {baseDir}/{binaryName}.
func (d Descriptor) InstallPath(baseDir string) string {
	return filepath.Join(baseDir, d.BinaryName())
}

// ExtractedDir returns the directory the archive unpacks into.
func (d Descriptor) ExtractedDir(baseDir string) string {
	return filepath.Join(baseDir, d.Key())
}

// ExtractedBinaryPath returns where the binary sits once the archive is
// unpacked into baseDir.
func (d Descriptor) ExtractedBinaryPath(baseDir string) string {
	return filepath.Join(d.ExtractedDir(baseDir), d.BinaryName())
}
