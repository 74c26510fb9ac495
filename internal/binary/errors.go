package binary

import "fmt"

// DownloadError is returned when an archive (or its checksum/signature) could
// not be fetched. StatusCode is zero for transport failures.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// VerificationError is returned when a downloaded archive fails its checksum
// or signature check.
type VerificationError struct {
	Archive string
	Method  VerificationMethod
	Err     error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s (%s): %v", e.Archive, e.Method, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// ExtractionError is returned when the archive is corrupt or does not contain
// the binary at the expected path.
type ExtractionError struct {
	Archive  string
	Expected string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// InstallError is returned when the extracted binary cannot be moved into
// place or made executable.
type InstallError struct {
	Path string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Path, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }
