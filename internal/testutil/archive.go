package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"testing"
)

// File is one archive entry.
type File struct {
	Content string
	Mode    int64
}

// TarGz builds an in-memory .tar.gz holding files, keyed by entry name.
// Parent directory entries are added the way release tarballs carry them.
func TarGz(t *testing.T, files map[string]File) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	dirs := map[string]bool{}
	for _, name := range names {
		for i := 0; i < len(name); i++ {
			if name[i] != '/' || dirs[name[:i+1]] {
				continue
			}
			dirs[name[:i+1]] = true
			if err := tw.WriteHeader(&tar.Header{Name: name[:i+1], Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
				t.Fatalf("failed to write dir header: %v", err)
			}
		}

		f := files[name]
		mode := f.Mode
		if mode == 0 {
			mode = 0644
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     mode,
			Size:     int64(len(f.Content)),
		}); err != nil {
			t.Fatalf("failed to write header for %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(f.Content)); err != nil {
			t.Fatalf("failed to write content for %s: %v", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}

	return buf.Bytes()
}

// ReleaseTarGz builds an archive laid out like an upstream release:
// {name}-{version}.{os}-{arch}/{binary} plus the usual companions.
func ReleaseTarGz(t *testing.T, key, binaryName, content string) []byte {
	t.Helper()
	return TarGz(t, map[string]File{
		key + "/" + binaryName:      {Content: content, Mode: 0755},
		key + "/LICENSE":            {Content: "Apache License 2.0\n"},
		key + "/prometheus.yml":     {Content: "global: {}\n"},
		key + "/consoles/index.lib": {Content: "{{/* console */}}\n"},
	})
}

// SHA256Sums renders a sha256sums.txt covering the given files.
func SHA256Sums(files map[string][]byte) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		sum := sha256.Sum256(files[name])
		fmt.Fprintf(&buf, "%s  %s\n", hex.EncodeToString(sum[:]), name)
	}
	return buf.String()
}
