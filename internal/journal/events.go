package journal

// eventType describes an event type.
type eventType = string

const (
	eventBinaryInstalled   eventType = "binary installed"
	eventProcessSpawnError eventType = "process spawn error"
	eventProcessSpawned    eventType = "process spawned"
	eventProcessExited     eventType = "process exited"
	eventProcessStopped    eventType = "process stopped"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates an empty event for the given type, for decoding. Nil is
// returned if the type is unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventBinaryInstalled:
		return &EventBinaryInstalled{}
	case eventProcessSpawnError:
		return &EventProcessSpawnError{}
	case eventProcessSpawned:
		return &EventProcessSpawned{}
	case eventProcessExited:
		return &EventProcessExited{}
	case eventProcessStopped:
		return &EventProcessStopped{}
	default:
		return nil
	}
}

// EventBinaryInstalled is emitted after a binary was downloaded and installed.
type EventBinaryInstalled struct {
	Binary string `json:"binary"`
	URL    string `json:"url"`
	Path   string `json:"path"`
}

func (ev *EventBinaryInstalled) Type() string { return eventBinaryInstalled }
func (ev *EventBinaryInstalled) event()       {}

// EventProcessSpawnError is emitted when the OS refused to start the child.
type EventProcessSpawnError struct {
	Owner  string `json:"owner"`
	Binary string `json:"binary"`
	Reason string `json:"reason"`
}

func (ev *EventProcessSpawnError) Type() string { return eventProcessSpawnError }
func (ev *EventProcessSpawnError) event()       {}

// EventProcessSpawned is emitted once the child has been started.
type EventProcessSpawned struct {
	Owner  string `json:"owner"`
	PID    int    `json:"pid"`
	Binary string `json:"binary"`
	Listen string `json:"listen"`
}

func (ev *EventProcessSpawned) Type() string { return eventProcessSpawned }
func (ev *EventProcessSpawned) event()       {}

// EventProcessExited is emitted when the child exits. Expected is false when
// nobody asked it to stop.
type EventProcessExited struct {
	Owner    string `json:"owner"`
	PID      int    `json:"pid"`
	ExitCode int    `json:"exit_code"`
	Expected bool   `json:"expected"`
	Error    string `json:"error,omitempty"`
}

func (ev *EventProcessExited) Type() string { return eventProcessExited }
func (ev *EventProcessExited) event()       {}

// EventProcessStopped is emitted when a stop was requested.
type EventProcessStopped struct {
	Owner      string `json:"owner"`
	PID        int    `json:"pid"`
	ConfigFile string `json:"config_file"`
}

func (ev *EventProcessStopped) Type() string { return eventProcessStopped }
func (ev *EventProcessStopped) event()       {}
