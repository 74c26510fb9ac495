package binary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ZebulonRouseFrantzich/promctl/internal/journal"
	"github.com/ZebulonRouseFrantzich/promctl/internal/logging"
)

// lockRetryDelay is how often a waiting process retries the install flock.
const lockRetryDelay = 50 * time.Millisecond

// Config holds configuration for the Provisioner.
type Config struct {
	// BaseDir holds installed binaries and extracted archives. Required.
	BaseDir string
	// ReleaseHost is the URL prefix releases are fetched from
	// (default: DefaultReleaseHost).
	ReleaseHost string
	// Verify selects archive verification (default: none).
	Verify VerificationMethod
	// KeyringPath is an OpenPGP keyring used when Verify is VerificationGPG.
	KeyringPath string
	// Timeout bounds download plus extraction (default: DefaultTimeout).
	Timeout time.Duration
	// Retries is the number of extra download attempts (default: 0).
	Retries int
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	Logger  logging.Logger
	Journal journal.Journaler
}

// Provisioner guarantees that a runnable binary exists for a Descriptor. It is
// meant to be constructed once and shared; the resolved paths are cached for
// its lifetime.
type Provisioner struct {
	baseDir     string
	releaseHost string
	verify      VerificationMethod
	timeout     time.Duration

	downloader *Downloader
	verifier   *Verifier
	extractor  *Extractor
	logger     logging.Logger
	journal    journal.Journaler

	mu    sync.Mutex
	locks map[string]*sync.Mutex // install path -> install mutex
	paths map[string]string      // descriptor key -> install path
}

// NewProvisioner creates a new Provisioner.
func NewProvisioner(config Config) (*Provisioner, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("BaseDir is required")
	}
	if config.Verify == VerificationGPG && config.KeyringPath == "" {
		return nil, fmt.Errorf("KeyringPath is required for gpg verification")
	}
	if config.Retries < 0 {
		return nil, fmt.Errorf("Retries must not be negative")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}

	releaseHost := config.ReleaseHost
	if releaseHost == "" {
		releaseHost = DefaultReleaseHost
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	downloader := NewDownloader(config.HTTPClient)
	downloader.retries = config.Retries

	return &Provisioner{
		baseDir:     baseDir,
		releaseHost: releaseHost,
		verify:      config.Verify,
		timeout:     timeout,
		downloader:  downloader,
		verifier:    NewVerifier(config.KeyringPath),
		extractor:   NewExtractor(),
		logger:      logging.OrNop(config.Logger),
		journal:     journal.OrDiscard(config.Journal),
		locks:       make(map[string]*sync.Mutex),
		paths:       make(map[string]string),
	}, nil
}

// BaseDir returns the absolute base directory.
func (p *Provisioner) BaseDir() string {
	return p.baseDir
}

// ReleaseHost returns the URL prefix archives are downloaded from.
func (p *Provisioner) ReleaseHost() string {
	return p.releaseHost
}

// IsInstalled reports whether the install path holds d. A binary recorded
// for another descriptor does not count.
func (p *Provisioner) IsInstalled(d Descriptor) bool {
	return p.installed(d)
}

// VersionDir returns {root}/{Key}, a base directory holding only d. Versions
// installed under different VersionDirs of one root never share a path.
func VersionDir(root string, d Descriptor) string {
	return filepath.Join(root, d.Key())
}

func (p *Provisioner) markerPath(d Descriptor) string {
	return filepath.Join(p.baseDir, "."+d.BinaryName()+".installed")
}

// installed reports whether the install path holds a binary installed for d.
// A binary without a marker was placed there by hand and is trusted.
func (p *Provisioner) installed(d Descriptor) bool {
	if !fileExists(d.InstallPath(p.baseDir)) {
		return false
	}
	marker, err := os.ReadFile(p.markerPath(d))
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	return err == nil && string(marker) == d.Key()
}

func (p *Provisioner) keyLock(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}

func (p *Provisioner) cached(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path, ok := p.paths[key]
	return path, ok
}

func (p *Provisioner) remember(key, path string) {
	p.mu.Lock()
	p.paths[key] = path
	p.mu.Unlock()
}

func (p *Provisioner) forget(key string) {
	p.mu.Lock()
	delete(p.paths, key)
	p.mu.Unlock()
}

// EnsureBinary returns the path of an executable binary for d, downloading
// and installing it if the install path is empty or holds another version.
// Repeated calls return the same path without network access.
//
// Failures are *DownloadError, *VerificationError, *ExtractionError or
// *InstallError. Nothing is retried unless Config.Retries says so.
func (p *Provisioner) EnsureBinary(ctx context.Context, d Descriptor) (string, error) {
	key := d.Key()
	installPath := d.InstallPath(p.baseDir)

	// Descriptors sharing a base dir share the install path.
	l := p.keyLock(installPath)
	l.Lock()
	defer l.Unlock()

	if path, ok := p.cached(key); ok {
		if p.installed(d) {
			return path, nil
		}
		p.forget(key)
	}

	if p.installed(d) {
		p.logger.Debug("binary cache hit", "binary", key, "path", installPath)
		p.remember(key, installPath)
		return installPath, nil
	}

	if err := os.MkdirAll(p.baseDir, 0755); err != nil {
		return "", &InstallError{Path: installPath, Err: fmt.Errorf("create base dir: %w", err)}
	}

	// Another process sharing baseDir may be installing the same binary.
	fl := flock.New(filepath.Join(p.baseDir, "."+d.BinaryName()+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", &InstallError{Path: installPath, Err: fmt.Errorf("acquire install lock: %w", err)}
	}
	if !locked {
		return "", &InstallError{Path: installPath, Err: fmt.Errorf("install lock not acquired")}
	}
	defer fl.Unlock()

	if p.installed(d) {
		p.logger.Debug("binary installed by another process", "binary", key, "path", installPath)
		p.remember(key, installPath)
		return installPath, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	if err := p.install(ctx, d); err != nil {
		return "", err
	}

	p.logger.Info("binary installed",
		"binary", key,
		"path", installPath,
		"duration", time.Since(start).Round(time.Millisecond))
	p.journal.Write(&journal.EventBinaryInstalled{
		Binary: key,
		URL:    d.DownloadURL(p.releaseHost),
		Path:   installPath,
	})

	p.remember(key, installPath)
	return installPath, nil
}

// install runs download, verification, extraction and the final move. It
// must be called with both install locks held.
func (p *Provisioner) install(ctx context.Context, d Descriptor) error {
	downloadDir := filepath.Join(p.baseDir, ".downloads", d.Key())
	defer os.RemoveAll(downloadDir)

	archivePath := filepath.Join(downloadDir, d.ArchiveName())
	url := d.DownloadURL(p.releaseHost)

	p.logger.Info("downloading binary", "url", url)
	if err := p.downloader.DownloadToFile(ctx, url, archivePath); err != nil {
		return err
	}

	if err := p.verifyArchive(ctx, d, archivePath, downloadDir); err != nil {
		return err
	}

	expected := d.ExtractedBinaryPath(p.baseDir)
	if err := p.extractor.Extract(ctx, archivePath, p.baseDir); err != nil {
		return &ExtractionError{Archive: d.ArchiveName(), Expected: expected, Err: err}
	}
	if !fileExists(expected) {
		return &ExtractionError{
			Archive:  d.ArchiveName(),
			Expected: expected,
			Err:      fmt.Errorf("archive does not contain %s", filepath.Join(d.Key(), d.BinaryName())),
		}
	}

	installPath := d.InstallPath(p.baseDir)
	if err := os.Rename(expected, installPath); err != nil {
		return &InstallError{Path: installPath, Err: err}
	}
	if err := SetExecutable(installPath); err != nil {
		return &InstallError{Path: installPath, Err: err}
	}
	if err := os.WriteFile(p.markerPath(d), []byte(d.Key()), 0644); err != nil {
		return &InstallError{Path: installPath, Err: fmt.Errorf("record installed version: %w", err)}
	}

	return nil
}

func (p *Provisioner) verifyArchive(ctx context.Context, d Descriptor, archivePath, downloadDir string) error {
	var err error

	switch p.verify {
	case VerificationNone:
		return nil

	case VerificationSHA256:
		sumsPath := filepath.Join(downloadDir, checksumFile)
		if err = p.downloader.DownloadToFile(ctx, d.ChecksumURL(p.releaseHost), sumsPath); err != nil {
			return err
		}
		err = p.verifier.VerifySHA256(archivePath, sumsPath, d.ArchiveName())

	case VerificationGPG:
		sigPath := archivePath + ".asc"
		if err = p.downloader.DownloadToFile(ctx, d.SignatureURL(p.releaseHost), sigPath); err != nil {
			return err
		}
		err = p.verifier.VerifySignature(archivePath, sigPath)

	default:
		err = errors.New("unknown verification method")
	}

	if err != nil {
		return &VerificationError{Archive: d.ArchiveName(), Method: p.verify, Err: err}
	}

	p.logger.Debug("archive verified", "archive", d.ArchiveName(), "method", p.verify.String())
	return nil
}
