// Package binary provisions versioned release binaries: it derives archive
// names, URLs and on-disk paths from a Descriptor, downloads and extracts the
// archive on first use, and reuses the installed copy afterwards.
//
// # Layout
//
// For a base directory B and descriptor prometheus/2.10.0/linux/amd64:
//
//	B/prometheus                                 installed binary
//	B/.prometheus.installed                      key of the installed descriptor
//	B/prometheus-2.10.0.linux-amd64/             extracted archive
//	B/.downloads/prometheus-2.10.0.linux-amd64/  transient download area
//	B/.prometheus.lock                           cross-process install lock
//
// The install path carries no version, so a base directory holds one version
// of each binary at a time; asking for another version replaces it. Use
// VersionDir to keep versions side by side.
//
// # Usage
//
//	prov, err := binary.NewProvisioner(binary.Config{BaseDir: dir})
//	if err != nil {
//	    return err
//	}
//	desc, err := binary.NewDescriptor(binary.Prometheus, "2.10.0", platformInfo)
//	if err != nil {
//	    return err
//	}
//	path, err := prov.EnsureBinary(ctx, desc)
//
// # Concurrency
//
// EnsureBinary serializes callers per install path with an in-process mutex
// and an flock in the base directory, so concurrent first use downloads exactly
// once even across processes sharing the same base directory.
//
// # Verification
//
// Archives can optionally be checked against the release's sha256sums.txt or
// against a detached OpenPGP signature (".asc") using a configured keyring.
package binary
