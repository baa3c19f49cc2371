package workflow

import (
	"context"

	"clipnote/internal/jobs"
	"clipnote/internal/stage"
)

// Health runs every registered stage health check in pipeline order.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(m.handlers))
	for _, st := range jobs.StageOrder() {
		handler, ok := m.handlers[st]
		if !ok {
			continue
		}
		out = append(out, handler.HealthCheck(ctx))
	}
	return out
}
