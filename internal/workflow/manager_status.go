package workflow

import (
	"context"
	"sort"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	InFlight    []string
	LastError   string
	LastJob     *queue.Job
	QueueStats  map[queue.Status]int
	StageHealth map[stage.ID]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastJob := m.lastJob.Clone()
	inFlight := make([]string, 0, len(m.inFlight))
	for id := range m.inFlight {
		inFlight = append(inFlight, id)
	}
	m.mu.RUnlock()
	sort.Strings(inFlight)

	stats, err := queue.Stats(ctx, m.store)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	summary := StatusSummary{
		Running:    running,
		Workers:    m.workers,
		InFlight:   inFlight,
		LastJob:    lastJob,
		QueueStats: stats,
	}
	if m.orchestrator != nil {
		summary.StageHealth = m.orchestrator.Health(ctx)
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	m.lastJob = job.Clone()
	m.mu.Unlock()
}
