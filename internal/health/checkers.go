package health

import (
	"context"

	"github.com/felixgeelhaar/stepwise/internal/exec"
	"github.com/felixgeelhaar/stepwise/internal/oracle"
	"github.com/felixgeelhaar/stepwise/internal/store"
)

// ProviderChecker verifies that the oracle provider answers its health
// endpoint.
type ProviderChecker struct {
	provider oracle.Provider
}

// NewProviderChecker creates a checker for p.
func NewProviderChecker(p oracle.Provider) *ProviderChecker {
	return &ProviderChecker{provider: p}
}

// Name returns the name of this health check.
func (c *ProviderChecker) Name() string {
	return "oracle-provider"
}

// Check calls the provider's health endpoint.
func (c *ProviderChecker) Check(ctx context.Context) *Result {
	if c.provider == nil {
		return Unhealthy("no oracle provider configured").
			WithDetail("suggestion", "Set provider.name in stepwise.yaml")
	}
	if err := c.provider.Health(ctx); err != nil {
		return Unhealthy("oracle provider is not reachable").
			WithDetail("provider", c.provider.Name()).
			WithDetail("error", err.Error())
	}
	return Healthy("oracle provider is reachable").
		WithDetail("provider", c.provider.Name())
}

// DockerChecker verifies that the docker daemon is reachable. It is only
// registered when commands run in containers.
type DockerChecker struct {
	probe func(ctx context.Context) error
}

// NewDockerChecker creates a checker that runs exec.DockerAvailable.
func NewDockerChecker() *DockerChecker {
	return &DockerChecker{probe: exec.DockerAvailable}
}

// Name returns the name of this health check.
func (c *DockerChecker) Name() string {
	return "docker-daemon"
}

// Check verifies Docker daemon is running and accessible.
func (c *DockerChecker) Check(ctx context.Context) *Result {
	if err := c.probe(ctx); err != nil {
		return Unhealthy("Docker daemon is not reachable").
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Start Docker or set exec.runner to local")
	}
	return Healthy("Docker daemon is running")
}

// StoreChecker verifies that the plan store can be listed. A failing store
// degrades the service since runs still execute without persistence.
type StoreChecker struct {
	plans store.PlanStore
}

// NewStoreChecker creates a checker for plans.
func NewStoreChecker(plans store.PlanStore) *StoreChecker {
	return &StoreChecker{plans: plans}
}

// Name returns the name of this health check.
func (c *StoreChecker) Name() string {
	return "plan-store"
}

// Check lists the stored plan ids.
func (c *StoreChecker) Check(ctx context.Context) *Result {
	ids, err := c.plans.List()
	if err != nil {
		return Degraded("plan store is not readable").
			WithDetail("error", err.Error())
	}
	return Healthy("plan store is readable").
		WithDetail("plans", len(ids))
}
