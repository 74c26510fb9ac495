package readiness

import (
	"context"
	"errors"
	"net"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen binds a loopback port and returns it.
func listen(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", Addr(0))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l.Addr().(*net.TCPAddr).Port
}

// unboundPort returns a port that was free a moment ago.
func unboundPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", Addr(0))
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestWaitUntilReady_Bound(t *testing.T) {
	port := listen(t)

	err := WaitUntilReady(context.Background(), port, 10*time.Millisecond, time.Second)
	assert.NoError(t, err)
}

func TestWaitUntilReady_Timeout(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{name: "port_zero", port: 0},
		{name: "unbound", port: unboundPort(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := WaitUntilReady(context.Background(), tt.port, 20*time.Millisecond, 150*time.Millisecond)

			var tErr *TimeoutError
			require.True(t, errors.As(err, &tErr), "got %T: %v", err, err)
			assert.Equal(t, Addr(tt.port), tErr.Addr)
			assert.Equal(t, 150*time.Millisecond, tErr.Timeout)
			assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
		})
	}
}

func TestWaitUntilReady_BoundLater(t *testing.T) {
	port := unboundPort(t)

	go func() {
		time.Sleep(100 * time.Millisecond)
		l, err := net.Listen("tcp", Addr(port))
		if err != nil {
			return
		}
		t.Cleanup(func() { l.Close() })
	}()

	err := WaitUntilReady(context.Background(), port, 20*time.Millisecond, 5*time.Second)
	assert.NoError(t, err)
}

func TestWaitUntilReady_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := WaitUntilReady(ctx, unboundPort(t), 10*time.Millisecond, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingProber struct {
	calls     int32
	readyFrom int32
	err       error
}

func (p *countingProber) Probe(ctx context.Context, port int) (bool, error) {
	n := atomic.AddInt32(&p.calls, 1)
	return n >= p.readyFrom, p.err
}

func TestDialProber(t *testing.T) {
	t.Run("bound", func(t *testing.T) {
		ready, err := DialProber{}.Probe(context.Background(), listen(t))
		assert.True(t, ready)
		assert.NoError(t, err)
	})

	t.Run("refused_is_not_yet", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("refused connections map to WSA errors")
		}
		ready, err := DialProber{}.Probe(context.Background(), unboundPort(t))
		assert.False(t, ready)
		assert.NoError(t, err)
	})

	t.Run("other_failures_reported", func(t *testing.T) {
		ready, err := DialProber{DialTimeout: time.Nanosecond}.Probe(context.Background(), listen(t))
		assert.False(t, ready)
		require.Error(t, err)
		var netErr net.Error
		require.True(t, errors.As(err, &netErr))
		assert.True(t, netErr.Timeout())
	})
}

func TestGate_TimeoutNamesDialFailure(t *testing.T) {
	g := &Gate{Prober: DialProber{DialTimeout: time.Nanosecond}, Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond}

	err := g.WaitUntilReady(context.Background(), listen(t))

	var tErr *TimeoutError
	require.True(t, errors.As(err, &tErr), "got %T: %v", err, err)
	require.Error(t, tErr.Last)
	assert.Contains(t, err.Error(), tErr.Last.Error())
}

func TestGate_CustomProber(t *testing.T) {
	p := &countingProber{readyFrom: 3}
	g := &Gate{Prober: p, Interval: time.Millisecond, Timeout: time.Second}

	require.NoError(t, g.WaitUntilReady(context.Background(), 9090))
	assert.Equal(t, int32(3), atomic.LoadInt32(&p.calls))
}

func TestGate_TimeoutKeepsLastError(t *testing.T) {
	probeErr := errors.New("socket table unavailable")
	g := &Gate{Prober: &countingProber{readyFrom: 1 << 30, err: probeErr}, Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}

	err := g.WaitUntilReady(context.Background(), 9090)

	var tErr *TimeoutError
	require.True(t, errors.As(err, &tErr))
	assert.ErrorIs(t, err, probeErr)
}

func TestListening(t *testing.T) {
	conns := []psnet.ConnectionStat{
		{Status: "ESTABLISHED", Laddr: psnet.Addr{IP: Host, Port: 9090}},
		{Status: "LISTEN", Laddr: psnet.Addr{IP: "10.0.0.5", Port: 9091}},
		{Status: "LISTEN", Laddr: psnet.Addr{IP: "0.0.0.0", Port: 9092}},
		{Status: "LISTEN", Laddr: psnet.Addr{IP: Host, Port: 9093}},
	}

	assert.False(t, listening(conns, 9090), "established socket is not a listener")
	assert.False(t, listening(conns, 9091), "non-loopback listener is unreachable")
	assert.True(t, listening(conns, 9092))
	assert.True(t, listening(conns, 9093))
	assert.False(t, listening(nil, 9093))
}

func TestNewProber(t *testing.T) {
	p, err := NewProber("", 0)
	require.NoError(t, err)
	assert.IsType(t, DialProber{}, p)

	p, err = NewProber("socket", 42)
	require.NoError(t, err)
	assert.Equal(t, ListenerProber{PID: 42}, p)

	_, err = NewProber("icmp", 0)
	assert.Error(t, err)
}
