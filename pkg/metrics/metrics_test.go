package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"mailscan/pkg/metrics"
)

func TestRecorder_ExportsToPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	mp, err := metrics.NewMeterProvider(reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	r, err := metrics.NewRecorder(mp)
	require.NoError(t, err)

	ctx := context.Background()
	r.ObserveMethod(ctx, "srv", metrics.OutcomeOK, "", 20*time.Millisecond)
	r.ObserveMethod(ctx, "buildin", metrics.OutcomeError, "NOT_FOUND", time.Millisecond)
	r.ObserveScan(ctx)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	require.Contains(t, joined, "mailscan_method_duration")
	require.Contains(t, joined, "mailscan_method_invocations")
	require.Contains(t, joined, "mailscan_scans")
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *metrics.Recorder
	require.NotPanics(t, func() {
		r.ObserveMethod(context.Background(), "srv", metrics.OutcomeOK, "", time.Second)
		r.ObserveScan(context.Background())
	})
}

func TestDefaultBuckets_Increasing(t *testing.T) {
	require.IsIncreasing(t, metrics.DefaultBuckets)
}
