package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZebulonRouseFrantzich/promctl/internal/binary"
	"github.com/ZebulonRouseFrantzich/promctl/internal/journal"
	"github.com/ZebulonRouseFrantzich/promctl/internal/logging"
)

// DefaultListenHost is the only interface the child binds.
const DefaultListenHost = "127.0.0.1"

// ErrExited is returned by Start once the supervisor has reached Exited.
var ErrExited = errors.New("supervisor has exited")

// State is the lifecycle state of a Supervisor.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BinaryResolver turns a descriptor into an executable path.
// *binary.Provisioner implements it.
type BinaryResolver interface {
	EnsureBinary(ctx context.Context, d binary.Descriptor) (string, error)
}

// SpawnError is returned when the child could not be started.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// RetentionPolicy holds the TSDB retention and block flags.
type RetentionPolicy struct {
	Time             string // --storage.tsdb.retention.time
	Size             string // --storage.tsdb.retention.size
	MinBlockDuration string // --storage.tsdb.min-block-duration
	MaxBlockDuration string // --storage.tsdb.max-block-duration
}

// DefaultRetention keeps two hours or 100MB, in two-hour blocks.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{
		Time:             "2h",
		Size:             "100MB",
		MinBlockDuration: "2h",
		MaxBlockDuration: "2h",
	}
}

func (r RetentionPolicy) withDefaults() RetentionPolicy {
	d := DefaultRetention()
	if r.Time == "" {
		r.Time = d.Time
	}
	if r.Size == "" {
		r.Size = d.Size
	}
	if r.MinBlockDuration == "" {
		r.MinBlockDuration = d.MinBlockDuration
	}
	if r.MaxBlockDuration == "" {
		r.MaxBlockDuration = d.MaxBlockDuration
	}
	return r
}

// Options configures a Supervisor.
type Options struct {
	Resolver   BinaryResolver
	Descriptor binary.Descriptor

	// Owner names the session in logs and journal events.
	Owner string
	// Port is the listen port. Required.
	Port int
	// ListenHost defaults to DefaultListenHost.
	ListenHost string
	// ConfigPath is the rendered session config. It must exist at Start
	// and is deleted by Stop.
	ConfigPath string
	// DataDir is the TSDB directory.
	DataDir string
	// Env is the complete child environment. Nothing is inherited.
	Env []string

	Retention RetentionPolicy

	// StopGracePeriod, when positive, escalates to SIGKILL if the child
	// outlives a Stop by that long.
	StopGracePeriod time.Duration

	Logger  logging.Logger
	Journal journal.Journaler
}

func (o *Options) validate() error {
	if o.Resolver == nil {
		return fmt.Errorf("resolver is required")
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("port %d out of range", o.Port)
	}
	if o.ConfigPath == "" {
		return fmt.Errorf("config path is required")
	}
	if o.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	return nil
}
