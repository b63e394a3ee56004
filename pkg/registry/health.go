package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Probe checks one dependency of the bridge (database, NATS, ...).
type Probe func(ctx context.Context) error

// Health reports the registry size and the outcome of each probe.
func (r *Registry) Health(ctx context.Context, probes map[string]Probe) *HealthOutput {
	checks := make(map[string]bool, len(probes))
	healthy := r.Len() > 0

	for name, probe := range probes {
		ok := true
		if err := probe(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - health probe %s failed: %v", logPrefix, name, err))
			ok = false
			healthy = false
		}
		checks[name] = ok
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return &HealthOutput{
		Status:       status,
		Capabilities: r.Len(),
		Checks:       checks,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}
