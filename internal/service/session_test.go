package service

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/promctl/internal/binary"
	"github.com/ZebulonRouseFrantzich/promctl/internal/readiness"
	"github.com/ZebulonRouseFrantzich/promctl/internal/render"
	"github.com/ZebulonRouseFrantzich/promctl/internal/supervisor"
	"github.com/ZebulonRouseFrantzich/promctl/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.MaybeRunFakePrometheus()
	os.Exit(m.Run())
}

type fakeResolver struct {
	err error
}

func (r fakeResolver) EnsureBinary(ctx context.Context, d binary.Descriptor) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return testutil.FakePrometheusPath(), nil
}

const testTemplate = `global:
  scrape_interval: 15s
scrape_configs:
  - job_name: kubernetes
    kubernetes_sd_configs:
      - api_server: {{ apiUrl }}
        role: node
# owner={{owner}} port={{port}}
`

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func newSession(t *testing.T, mode string, resolver supervisor.BinaryResolver, mutate func(*SessionRequest)) (*SessionService, *testutil.Logger) {
	t.Helper()

	env := testutil.SetupTestEnv(t)
	tmpl := filepath.Join(env.ConfigDir, "prometheus.yaml.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte(testTemplate), 0644))

	renderer, err := render.NewRenderer(render.Config{Dir: env.TmpDir})
	require.NoError(t, err)

	req := SessionRequest{
		Owner:         "minikube",
		Descriptor:    binary.Descriptor{Name: binary.Prometheus, Version: "2.10.0", OS: "linux", Arch: "amd64"},
		Port:          freePort(t),
		APIURL:        "https://192.168.49.2:8443",
		TemplatePath:  tmpl,
		DataDir:       env.DataDir,
		Env:           testutil.FakePrometheusEnv(mode),
		ReadyInterval: 20 * time.Millisecond,
		ReadyTimeout:  5 * time.Second,
	}
	if mutate != nil {
		mutate(&req)
	}

	logger := &testutil.Logger{}
	svc, err := NewSessionService(resolver, renderer, req, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		svc.Exit()
		if svc.Supervisor().PID() != 0 {
			select {
			case <-svc.Supervisor().Reaped():
			case <-time.After(2 * time.Second):
			}
		}
	})

	return svc, logger
}

func TestNewSessionService_RendersConfig(t *testing.T) {
	svc, _ := newSession(t, testutil.FakeServe, fakeResolver{}, nil)

	content, err := os.ReadFile(svc.ConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), "api_server: https://192.168.49.2:8443")
	assert.Contains(t, string(content), "owner=minikube")
	assert.Equal(t, supervisor.StateNotStarted, svc.Supervisor().State())
}

func TestRunAndExit(t *testing.T) {
	svc, _ := newSession(t, testutil.FakeServe, fakeResolver{}, nil)

	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, supervisor.StateRunning, svc.Supervisor().State())
	assert.Empty(t, svc.LastError())

	conn, err := net.Dial("tcp", svc.Supervisor().ListenAddress())
	require.NoError(t, err)
	conn.Close()

	// Running again only re-checks readiness.
	pid := svc.Supervisor().PID()
	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, pid, svc.Supervisor().PID())

	svc.Exit()
	assert.NoFileExists(t, svc.ConfigPath())
	select {
	case <-svc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not done after Exit")
	}
	assert.NotPanics(t, svc.Exit)
}

func TestRun_SlowStart(t *testing.T) {
	svc, _ := newSession(t, testutil.FakeSlow, fakeResolver{}, nil)

	start := time.Now()
	require.NoError(t, svc.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), testutil.FakeSlowDelay)
}

func TestRun_ExitBeforeReady(t *testing.T) {
	svc, logger := newSession(t, testutil.FakeCrash, fakeResolver{}, nil)

	err := svc.Run(context.Background())

	assert.ErrorIs(t, err, ErrExitedBeforeReady)
	assert.NotErrorIs(t, err, ErrStoppedBeforeReady)
	assert.Equal(t, supervisor.StateExited, svc.Supervisor().State())
	assert.Equal(t, err.Error(), svc.LastError())
	assert.NotEmpty(t, logger.ByLevel("ERROR"))
}

func TestRun_ExitDuringReadiness(t *testing.T) {
	svc, _ := newSession(t, testutil.FakeNoBind, fakeResolver{}, nil)

	go func() {
		for svc.Supervisor().PID() == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		svc.Exit()
	}()

	err := svc.Run(context.Background())

	assert.ErrorIs(t, err, ErrStoppedBeforeReady)
	assert.NotErrorIs(t, err, ErrExitedBeforeReady)
	assert.Equal(t, err.Error(), svc.LastError())
}

func TestRun_TimeoutLeavesChildRunning(t *testing.T) {
	svc, _ := newSession(t, testutil.FakeNoBind, fakeResolver{}, func(r *SessionRequest) {
		r.ReadyTimeout = 200 * time.Millisecond
	})

	err := svc.Run(context.Background())

	var tErr *readiness.TimeoutError
	require.True(t, errors.As(err, &tErr), "got %T: %v", err, err)
	assert.Equal(t, supervisor.StateRunning, svc.Supervisor().State())
	assert.NotEmpty(t, svc.LastError())
}

func TestRun_ResolverError(t *testing.T) {
	resolveErr := &binary.DownloadError{URL: "http://mirror/v2.10.0/x.tar.gz", StatusCode: 404}
	svc, _ := newSession(t, testutil.FakeServe, fakeResolver{err: resolveErr}, nil)

	err := svc.Run(context.Background())

	var dlErr *binary.DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Contains(t, svc.LastError(), "404")
	assert.Equal(t, supervisor.StateNotStarted, svc.Supervisor().State())
}

func TestRun_Cancelled(t *testing.T) {
	svc, _ := newSession(t, testutil.FakeNoBind, fakeResolver{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrExitedBeforeReady)
}

func TestRun_SocketProbe(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("socket table probe is exercised on linux")
	}
	svc, _ := newSession(t, testutil.FakeServe, fakeResolver{}, func(r *SessionRequest) {
		r.Probe = "socket"
	})

	require.NoError(t, svc.Run(context.Background()))
}

func TestNewSessionService_Errors(t *testing.T) {
	renderer, err := render.NewRenderer(render.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = NewSessionService(fakeResolver{}, renderer, SessionRequest{
		TemplatePath: filepath.Join(t.TempDir(), "missing.tmpl"),
		Port:         9090,
		DataDir:      t.TempDir(),
	}, nil, nil)
	var readErr *render.TemplateReadError
	assert.True(t, errors.As(err, &readErr), "got %T: %v", err, err)

	_, err = NewSessionService(fakeResolver{}, renderer, SessionRequest{Probe: "icmp"}, nil, nil)
	assert.Error(t, err)

	// Invalid supervisor options must not leak a rendered file.
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "t.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte("x"), 0644))
	out := filepath.Join(dir, "out")
	renderer, err = render.NewRenderer(render.Config{Dir: out})
	require.NoError(t, err)

	_, err = NewSessionService(fakeResolver{}, renderer, SessionRequest{TemplatePath: tmpl, Port: 0, DataDir: dir}, nil, nil)
	require.Error(t, err)
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTemplateValues(t *testing.T) {
	values := TemplateValues(SessionRequest{Owner: "kind", Port: 9091, APIURL: "https://x", DataDir: "/d"})

	assert.Equal(t, map[string]string{
		"apiUrl":  "https://x",
		"owner":   "kind",
		"port":    "9091",
		"dataDir": "/d",
	}, values)
}
