/*
Package health provides on-demand health probes for topology components.

A sink or source that talks to something external (an HTTP endpoint,
a broker) can implement topology.HealthChecker by delegating to a
Checker here. The topology's supervisor calls Healthcheck(ctx) on its
own schedule; this package only supplies the single-probe primitive,
not the polling loop, consecutive-failure bookkeeping, or replacement
decision — that already lives in pkg/topology.

# Checker Interface

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

# Result

	type Result struct {
		Healthy   bool
		Message   string
		CheckedAt time.Time
		Duration  time.Duration
	}

# HTTP Checks

	checker := health.NewHTTPChecker("http://localhost:9200/_cluster/health")
	checker.WithStatusRange(200, 299).WithTimeout(5 * time.Second)

	result := checker.Check(ctx)
	if !result.Healthy {
		// surface result.Message from the owning component's Healthcheck
	}

# Status Tracking

Status and Config exist for callers that do want hysteresis (multiple
consecutive failures before declaring unhealthy) on top of a bare
Checker, rather than reacting to every single failed probe:

	config := health.DefaultConfig()
	status := health.NewStatus()
	status.Update(checker.Check(ctx), config)
	if !status.Healthy {
		// status.ConsecutiveFailures failures in a row
	}

No caller in this module currently needs that layer — the reference
HTTP sink's Healthcheck reports each probe's result directly — but it
stays available for a sink with flappier dependencies.
*/
package health
