package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"reelforge/internal/config"
	"reelforge/internal/notifications"
	"reelforge/internal/pipeline"
	"reelforge/internal/queue"
	"reelforge/internal/queueaccess"
	"reelforge/internal/services/command"
	"reelforge/internal/services/planner"
	"reelforge/internal/services/sheets"
	"reelforge/internal/workflow"
)

// Runtime bundles the wired store, orchestrator, and manager. The daemon
// runs the manager; `reelforge job run` drives the orchestrator directly.
type Runtime struct {
	Store        queue.Store
	Orchestrator *workflow.Orchestrator
	Manager      *workflow.Manager
}

// NewRuntime opens the configured store and wires the collaborator
// adapters into the pipeline handlers.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	store, err := queueaccess.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt, err := newRuntime(cfg, store, Collaborators(cfg), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return rt, nil
}

// Collaborators builds the production adapters: command-line collaborators
// plus the HTTP transcript store. When the planner is configured it takes
// over highlight detection and plan generation for stages with no command.
func Collaborators(cfg *config.Config) pipeline.Collaborators {
	collab := command.NewClient(cfg).Collaborators(sheets.NewClient(cfg))
	if llmPlanner := planner.New(cfg); llmPlanner.Configured() {
		if len(cfg.Commands.DetectHighlights) == 0 {
			collab.HighlightDetector = llmPlanner
		}
		if len(cfg.Commands.GeneratePlan) == 0 {
			collab.PlanGenerator = llmPlanner
		}
	}
	return collab
}

func newRuntime(cfg *config.Config, store queue.Store, collab pipeline.Collaborators, logger *slog.Logger) (*Runtime, error) {
	handlers := pipeline.New(cfg.Paths.WorkDir, collab, logger).Handlers()
	orch, err := workflow.NewOrchestrator(cfg, store, handlers, logger,
		workflow.WithNotifier(notifications.NewService(cfg)),
	)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return &Runtime{
		Store:        store,
		Orchestrator: orch,
		Manager:      workflow.NewManager(cfg, store, orch, logger),
	}, nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}
