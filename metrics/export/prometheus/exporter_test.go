package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/otpgate"
)

type fakeSource struct {
	snapshot otpgate.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() otpgate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: otpgate.MetricsSnapshot{
			Counters:   map[otpgate.MetricID]uint64{},
			Histograms: map[otpgate.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderCountersAndHistograms(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: otpgate.MetricsSnapshot{
			Counters: map[otpgate.MetricID]uint64{
				otpgate.MetricOTPIssued:       7,
				otpgate.MetricPromoteConflict: 1,
			},
			Histograms: map[otpgate.MetricID][]uint64{
				otpgate.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE otpgate_otp_issued_total counter\n",
		"otpgate_otp_issued_total 7\n",
		"otpgate_promote_conflict_total 1\n",
		"otpgate_session_issued_total 0\n",
		`otpgate_session_validate_latency_seconds_bucket{le="0.005"} 1`,
		`otpgate_session_validate_latency_seconds_bucket{le="+Inf"} 36`,
		"otpgate_session_validate_latency_seconds_count 36\n",
		"otpgate_audit_dropped_total 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "otpgate_otp_verify_latency_seconds") {
		t.Fatalf("histogram without samples map entry should be omitted:\n%s", out)
	}
}

func TestRenderLiveEngineSnapshot(t *testing.T) {
	m := otpgate.NewMetrics(otpgate.MetricsConfig{Enabled: true})
	m.Inc(otpgate.MetricSessionIssued)
	m.Inc(otpgate.MetricSessionIssued)

	exp := NewExporter(metricsOnly{m})
	if out := exp.Render(); !strings.Contains(out, "otpgate_session_issued_total 2\n") {
		t.Fatalf("expected live counter value, got:\n%s", out)
	}
}

type metricsOnly struct{ m *otpgate.Metrics }

func (s metricsOnly) MetricsSnapshot() otpgate.MetricsSnapshot { return s.m.Snapshot() }
func (s metricsOnly) AuditDropped() uint64                     { return 0 }

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: otpgate.MetricsSnapshot{
			Counters:   map[otpgate.MetricID]uint64{otpgate.MetricOTPIssued: 1},
			Histograms: map[otpgate.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporter(fakeSource{
		snapshot: otpgate.MetricsSnapshot{
			Counters: map[otpgate.MetricID]uint64{
				otpgate.MetricOTPIssued:        1000,
				otpgate.MetricOTPVerifySuccess: 800,
				otpgate.MetricOTPVerifyInvalid: 40,
				otpgate.MetricSessionIssued:    800,
			},
			Histograms: map[otpgate.MetricID][]uint64{
				otpgate.MetricVerifyLatency:   {10, 20, 30, 40, 50, 60, 70, 80},
				otpgate.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
