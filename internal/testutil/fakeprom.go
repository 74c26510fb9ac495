package testutil

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const fakePrometheusEnv = "PROMCTL_FAKE_PROMETHEUS"

// Fake prometheus behaviours.
const (
	// FakeServe binds --web.listen-address and exits 0 on SIGTERM.
	FakeServe = "serve"
	// FakeSlow is FakeServe with a delay before binding.
	FakeSlow = "slow"
	// FakeCrash writes to stderr and exits with FakeCrashCode.
	FakeCrash = "crash"
	// FakeStubborn binds the port and ignores SIGTERM.
	FakeStubborn = "stubborn"
	// FakeNoBind stays alive without ever binding the port.
	FakeNoBind = "nobind"

	FakeCrashCode = 3
	FakeSlowDelay = 300 * time.Millisecond
)

// FakePrometheusEnv returns the child environment that turns the test binary
// into a fake prometheus.
func FakePrometheusEnv(mode string) []string {
	return []string{fakePrometheusEnv + "=" + mode}
}

// FakePrometheusPath returns the executable to spawn as a fake prometheus.
func FakePrometheusPath() string {
	path, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return path
}

// MaybeRunFakePrometheus must be the first statement of TestMain in packages
// that spawn FakePrometheusPath. When the process is a fake prometheus it
// never returns.
func MaybeRunFakePrometheus() {
	mode := os.Getenv(fakePrometheusEnv)
	if mode == "" {
		return
	}
	os.Exit(runFakePrometheus(mode, os.Args[1:]))
}

func flagValue(args []string, name string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == name {
			return args[i+1]
		}
	}
	return ""
}

func runFakePrometheus(mode string, args []string) int {
	if mode == FakeCrash {
		fmt.Fprintln(os.Stderr, `level=error msg="crashing on purpose"`)
		return FakeCrashCode
	}

	if _, err := os.Stat(flagValue(args, "--config.file")); err != nil {
		fmt.Fprintf(os.Stderr, "level=error msg=\"config unreadable\" err=%q\n", err)
		return 2
	}

	sigs := make(chan os.Signal, 1)
	if mode == FakeStubborn {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signal.Notify(sigs, syscall.SIGTERM, os.Interrupt)
	}

	if mode == FakeSlow {
		time.Sleep(FakeSlowDelay)
	}

	if mode != FakeNoBind {
		l, err := net.Listen("tcp", flagValue(args, "--web.listen-address"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "level=error msg=\"listen failed\" err=%q\n", err)
			return 1
		}
		defer l.Close()
		go func() {
			for {
				conn, err := l.Accept()
				if err != nil {
					return
				}
				conn.Close()
			}
		}()
	}

	fmt.Println(`level=info msg="Server is ready to receive web requests."`)
	fmt.Fprintln(os.Stderr, `level=warn msg="running as fake prometheus"`)

	if mode == FakeStubborn {
		for {
			time.Sleep(time.Hour)
		}
	}

	<-sigs
	return 0
}
