package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/auto"
	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/exec"
	"github.com/felixgeelhaar/stepwise/internal/oracle"
)

func TestInstrumentProvider(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	p := m.InstrumentProvider(oracle.NewScripted("one"))

	resp, err := p.Generate(context.Background(), &oracle.Request{})
	require.NoError(t, err)
	assert.Equal(t, "one", resp.Content)

	_, err = p.Generate(context.Background(), &oracle.Request{})
	require.Error(t, err)

	assert.Equal(t, "scripted", p.Name())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCalls.WithLabelValues("scripted", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCalls.WithLabelValues("scripted", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("unknown", "oracle")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OracleLatency))
}

func TestInstrumentRunner(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	tests := []struct {
		name  string
		inner exec.Runner
		label string
	}{
		{name: "success", inner: exec.DryRunRunner{}, label: "true"},
		{
			name: "non-zero exit",
			inner: exec.RunnerFunc(func(ctx context.Context, command string) (*exec.Result, error) {
				return &exec.Result{Command: command, ExitCode: 2}, nil
			}),
			label: "false",
		},
		{
			name: "denied",
			inner: exec.RunnerFunc(func(ctx context.Context, command string) (*exec.Result, error) {
				return nil, errors.New(errors.ErrCodeConfigInvalid, "denied")
			}),
			label: "false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(m.Commands.WithLabelValues(tt.label))
			_, _ = m.InstrumentRunner(tt.inner).Run(context.Background(), "ls")
			assert.Equal(t, before+1, testutil.ToFloat64(m.Commands.WithLabelValues(tt.label)))
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("CONFIG-001", "exec")))
}

func TestRecordRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRun(&auto.RunOutput{
		Status:    auto.StatusPartial,
		ErrorCode: "PLAN-003",
		Metrics:   auto.RunMetrics{Duration: 2 * time.Second, Steps: 7, Repairs: 2, Failures: 3},
	})
	m.RecordRun(&auto.RunOutput{Status: auto.StatusCompleted, Metrics: auto.RunMetrics{Steps: 1}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues(auto.StatusPartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues(auto.StatusCompleted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Repairs))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TaskFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("PLAN-003", "engine")))
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.Repairs.Inc()

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "stepwise_repairs_total 1")
	assert.Contains(t, body, "go_goroutines")
}
