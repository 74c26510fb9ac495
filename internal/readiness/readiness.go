// Package readiness blocks until a local TCP port accepts connections.
//
// The gate only observes. It never signals or kills the process that is
// expected to bind the port; a timeout is reported to the caller, who
// decides what to do with the child.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"
)

const (
	// DefaultInterval is the delay between two probes.
	DefaultInterval = 500 * time.Millisecond
	// DefaultTimeout bounds the whole wait.
	DefaultTimeout = 10 * time.Second

	// Host is the loopback address every probe targets.
	Host = "127.0.0.1"
)

// Addr returns the probed address for port.
func Addr(port int) string {
	return net.JoinHostPort(Host, strconv.Itoa(port))
}

// TimeoutError is returned when the port was not bound before the timeout.
type TimeoutError struct {
	Addr    string
	Timeout time.Duration
	// Last is the most recent probe failure, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s not ready after %s: %v", e.Addr, e.Timeout, e.Last)
	}
	return fmt.Sprintf("%s not ready after %s", e.Addr, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// Prober checks whether a port is bound. A false result with a nil error
// means "not yet"; errors are remembered but do not end the wait.
type Prober interface {
	Probe(ctx context.Context, port int) (bool, error)
}

// Gate polls a Prober until it reports ready.
type Gate struct {
	Prober   Prober        // default: DialProber
	Interval time.Duration // default: DefaultInterval
	Timeout  time.Duration // default: DefaultTimeout
}

// WaitUntilReady probes 127.0.0.1:port with the default DialProber.
func WaitUntilReady(ctx context.Context, port int, interval, timeout time.Duration) error {
	g := &Gate{Interval: interval, Timeout: timeout}
	return g.WaitUntilReady(ctx, port)
}

// WaitUntilReady returns nil on the first successful probe, a *TimeoutError
// once the timeout elapses, or ctx.Err() if ctx is done first.
func (g *Gate) WaitUntilReady(ctx context.Context, port int) error {
	prober := g.Prober
	if prober == nil {
		prober = DialProber{}
	}
	interval := g.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		ready, err := prober.Probe(ctx, port)
		if ready {
			return nil
		}
		if err != nil {
			last = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &TimeoutError{Addr: Addr(port), Timeout: timeout, Last: last}
		case <-ticker.C:
		}
	}
}

// DialProber reports ready when a TCP connection to the port succeeds.
type DialProber struct {
	// DialTimeout bounds each connection attempt (default: 1s).
	DialTimeout time.Duration
}

// Probe implements Prober.
func (p DialProber) Probe(ctx context.Context, port int) (bool, error) {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", Addr(port))
	if err != nil {
		// Refused connections are the normal "not yet" answer.
		if errors.Is(err, syscall.ECONNREFUSED) {
			return false, nil
		}
		return false, err
	}
	conn.Close()
	return true, nil
}
