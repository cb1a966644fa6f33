package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/oracle"
	"github.com/felixgeelhaar/stepwise/internal/store"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// mockChecker is a test double for health checks
type mockChecker struct {
	name   string
	result *Result
	delay  time.Duration
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) *Result {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Unhealthy("check cancelled")
		}
	}
	return m.result
}

type failingProvider struct {
	*oracle.Scripted
}

func (failingProvider) Health(context.Context) error {
	return errors.New("connection refused")
}

type brokenStore struct {
	store.PlanStore
}

func (brokenStore) List() ([]string, error) {
	return nil, errors.New("disk gone")
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]*Result
		want    Status
	}{
		{name: "no checks", want: StatusHealthy},
		{name: "all healthy", results: map[string]*Result{"a": Healthy("ok"), "b": Healthy("ok")}, want: StatusHealthy},
		{name: "one degraded", results: map[string]*Result{"a": Healthy("ok"), "b": Degraded("slow")}, want: StatusDegraded},
		{name: "unhealthy wins", results: map[string]*Result{"a": Degraded("slow"), "b": Unhealthy("down")}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverallStatus(tt.results))
		})
	}
}

func TestManagerCheck(t *testing.T) {
	m := NewManager().WithTimeout(50 * time.Millisecond)
	m.AddChecker(&mockChecker{name: "fast", result: Healthy("ok")})
	m.AddChecker(&mockChecker{name: "slow", result: Healthy("ok"), delay: time.Second})
	m.AddChecker(&mockChecker{name: "nil"})

	results := m.Check(context.Background())

	require.Len(t, results, 3)
	assert.Equal(t, StatusHealthy, results["fast"].Status)
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, StatusUnhealthy, results["nil"].Status)
	assert.Positive(t, results["slow"].Latency)
	assert.Equal(t, []string{"fast", "slow", "nil"}, m.CheckNames())
}

func TestProbes(t *testing.T) {
	pm := NewProbeManager("1.2.3")
	pm.AddChecker(&mockChecker{name: "store", result: Degraded("read only")})

	live := pm.CheckLiveness(context.Background())
	assert.Equal(t, StatusHealthy, live.Status)
	assert.Equal(t, "1.2.3", live.Version)
	assert.Empty(t, live.Checks)

	ready := pm.CheckReadiness(context.Background())
	assert.Equal(t, StatusDegraded, ready.Status)
	assert.Contains(t, ready.Checks, "store")

	pm.MarkShutdown()
	assert.Equal(t, StatusDegraded, pm.CheckLiveness(context.Background()).Status)
	ready = pm.CheckReadiness(context.Background())
	assert.Equal(t, StatusUnhealthy, ready.Status)
	assert.Empty(t, ready.Checks)
}

func TestProviderChecker(t *testing.T) {
	tests := []struct {
		name     string
		provider oracle.Provider
		want     Status
	}{
		{name: "reachable", provider: oracle.NewScripted(), want: StatusHealthy},
		{name: "unreachable", provider: failingProvider{oracle.NewScripted()}, want: StatusUnhealthy},
		{name: "missing", want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewProviderChecker(tt.provider)
			assert.Equal(t, "oracle-provider", c.Name())
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

func TestDockerChecker(t *testing.T) {
	c := &DockerChecker{probe: func(context.Context) error { return errors.New("no daemon") }}
	result := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "no daemon", result.Details["error"])

	c.probe = func(context.Context) error { return nil }
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestStoreChecker(t *testing.T) {
	plans := store.NewMemoryStore()
	_, err := plans.Save(task.FallbackPlan("goal"))
	require.NoError(t, err)

	result := NewStoreChecker(plans).Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, 1, result.Details["plans"])

	result = NewStoreChecker(brokenStore{plans}).Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
}
