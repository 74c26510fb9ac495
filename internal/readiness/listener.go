package readiness

import (
	"context"
	"fmt"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// ListenerProber reads the host socket table instead of connecting, so the
// probe itself never shows up as a client of the server. When PID is set,
// only sockets owned by that process count; a foreign listener on the same
// port is ignored.
type ListenerProber struct {
	PID int32
}

// Probe implements Prober.
func (p ListenerProber) Probe(ctx context.Context, port int) (bool, error) {
	var (
		conns []psnet.ConnectionStat
		err   error
	)
	if p.PID > 0 {
		conns, err = psnet.ConnectionsPidWithContext(ctx, "tcp", p.PID)
	} else {
		conns, err = psnet.ConnectionsWithContext(ctx, "tcp")
	}
	if err != nil {
		return false, fmt.Errorf("list sockets: %w", err)
	}

	return listening(conns, port), nil
}

func listening(conns []psnet.ConnectionStat, port int) bool {
	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port {
			continue
		}
		switch c.Laddr.IP {
		case Host, "0.0.0.0", "::", "*", "":
			return true
		}
	}
	return false
}

// NewProber returns the prober selected by name: "dial" (default) or
// "socket". pid restricts the socket prober to one process.
func NewProber(name string, pid int32) (Prober, error) {
	switch name {
	case "", "dial":
		return DialProber{}, nil
	case "socket":
		return ListenerProber{PID: pid}, nil
	default:
		return nil, fmt.Errorf("unknown readiness probe %q", name)
	}
}
