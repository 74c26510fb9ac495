//go:build unix

package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ZebulonRouseFrantzich/promctl/internal/testutil"
)

func TestStop_EscalatesAfterGracePeriod(t *testing.T) {
	f := newFixture(t, testutil.FakeStubborn, func(o *Options) {
		o.StopGracePeriod = 200 * time.Millisecond
	})
	f.startReady(t)

	start := time.Now()
	f.sup.Stop()
	assert.Less(t, time.Since(start), 100*time.Millisecond, "Stop must not wait for the child")

	waitClosed(t, f.sup.Reaped(), "kill after grace period")
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	warned := false
	for _, e := range f.logger.ByLevel("WARN") {
		if e.Msg == "prometheus ignored SIGTERM, killing" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestStop_WithoutGracePeriodDoesNotKill(t *testing.T) {
	f := newFixture(t, testutil.FakeStubborn, nil)
	f.startReady(t)

	f.sup.Stop()

	select {
	case <-f.sup.Reaped():
		t.Fatal("stubborn child exited without escalation")
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, StateExited, f.sup.State())
}
