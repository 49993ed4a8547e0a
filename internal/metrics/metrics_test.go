package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8inary/infra/internal/converge"
)

func TestObserveStep(t *testing.T) {
	r := New("node-a")

	r.ObserveStep("sysctl", converge.StateSatisfied, 200*time.Millisecond)
	r.ObserveStep("sysctl", converge.StateSatisfied, 100*time.Millisecond)
	r.ObserveStep("firewall", converge.StateFailed, time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.stepTotal.WithLabelValues("node-a", "sysctl", "satisfied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.stepTotal.WithLabelValues("node-a", "firewall", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.stepDuration))
}

func TestObserveStep_PendingHasNoDuration(t *testing.T) {
	r := New("node-a")

	r.ObserveStep("istio", converge.StatePending, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.stepTotal.WithLabelValues("node-a", "istio", "pending")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.stepDuration))
}

func TestObserveRun(t *testing.T) {
	r := New("node-a")
	finished := time.Unix(1700000000, 0)

	r.ObserveRun(&converge.Report{
		Steps:    []converge.StepReport{{Name: "sysctl", State: converge.StateApplied}},
		Duration: 90 * time.Second,
	}, finished)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.runConverged.WithLabelValues("node-a")))
	assert.Equal(t, float64(90), testutil.ToFloat64(r.runDuration.WithLabelValues("node-a")))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(r.runTimestamp.WithLabelValues("node-a")))

	r.ObserveRun(&converge.Report{
		Steps: []converge.StepReport{{Name: "sysctl", State: converge.StateFailed}},
	}, finished)
	assert.Equal(t, float64(0), testutil.ToFloat64(r.runConverged.WithLabelValues("node-a")))
}

func TestRecorderImplementsMetrics(t *testing.T) {
	var _ converge.Metrics = New("node-a")
}

func TestWriteTextfile(t *testing.T) {
	r := New("node-a")
	r.ObserveStep("disable-swap", converge.StateSatisfied, 10*time.Millisecond)

	path := filepath.Join(t.TempDir(), "infra.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `infra_converge_step_total{machine="node-a",state="satisfied",step="disable-swap"} 1`), out)
	assert.Contains(t, out, "# TYPE infra_converge_step_duration_seconds histogram")
}

func TestWriteTextfile_BadPath(t *testing.T) {
	r := New("node-a")
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "infra.prom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write metrics")
}
