package advisor

import "time"

// ProviderStatus reports one data source and its breaker state.
type ProviderStatus struct {
	Name         string `json:"name"`
	Role         string `json:"role"` // "primary" or "fallback"
	Healthy      bool   `json:"healthy"`
	CircuitState string `json:"circuit_state"`
}

// GenerationStatus reports the configured generation backend.
type GenerationStatus struct {
	Name         string `json:"name"`
	Healthy      bool   `json:"healthy"`
	CircuitState string `json:"circuit_state"`
}

// ServiceStatus is the monitoring surface for the whole analysis layer.
type ServiceStatus struct {
	UptimeSec      int64                     `json:"uptime_sec"`
	DataProviders  []ProviderStatus          `json:"data_providers"`
	Generation     GenerationStatus          `json:"generation"`
	CostLedger     LedgerSnapshot            `json:"cost_ledger"`
	PerStageHealth map[StageKind]stageHealth `json:"per_stage_health"`
	RecentAnalyses int                       `json:"recent_analyses"`
}

// ServiceStatus assembles the current health view. Breaker state reads are
// best-effort; a store error reports the state as unknown rather than
// failing the status call.
func (c *Core) ServiceStatus() ServiceStatus {
	primaryState := c.circuitStateOf("provider:" + c.manager.PrimaryName())
	fallbackState := c.circuitStateOf("provider:" + c.manager.FallbackName())
	providers := []ProviderStatus{
		{Name: c.manager.PrimaryName(), Role: "primary", Healthy: healthyState(primaryState), CircuitState: primaryState},
		{Name: c.manager.FallbackName(), Role: "fallback", Healthy: healthyState(fallbackState), CircuitState: fallbackState},
	}

	c.healthMu.Lock()
	health := make(map[StageKind]stageHealth, len(c.health))
	for kind, h := range c.health {
		health[kind] = h
	}
	c.healthMu.Unlock()

	generationState := c.circuitStateOf("generation:" + c.backend.Name())

	return ServiceStatus{
		UptimeSec:     int64(time.Since(c.startedAt).Seconds()),
		DataProviders: providers,
		Generation: GenerationStatus{
			Name:         c.backend.Name(),
			Healthy:      healthyState(generationState),
			CircuitState: generationState,
		},
		CostLedger:     c.ledger.Snapshot(),
		PerStageHealth: health,
		RecentAnalyses: len(c.recent.list()),
	}
}

// healthyState treats anything but a tripped breaker as healthy. An open
// circuit is the one state where the dependency is known-bad right now.
func healthyState(state string) bool {
	return state != CircuitOpen
}

func (c *Core) circuitStateOf(key string) string {
	state, err := c.breaker.State(key)
	if err != nil {
		return "unknown"
	}
	return state
}
