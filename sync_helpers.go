package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/tripletsync/internal/config"
	"github.com/tonimelisma/tripletsync/internal/remote"
	"github.com/tonimelisma/tripletsync/internal/sync"
)

// newSyncEngine opens the remote repository and builds a sync.Engine from
// the resolved configuration.
func newSyncEngine(ctx context.Context, resolved *config.Resolved, logger *slog.Logger) (*sync.Engine, error) {
	if resolved == nil {
		return nil, fmt.Errorf("no configuration loaded")
	}

	s := &resolved.Sync

	if s.StateDir == "" {
		return nil, fmt.Errorf("cannot determine state directory for %q; set sync.state_dir", s.LocalRoot)
	}

	dir, err := sync.ParseDirection(s.Direction)
	if err != nil {
		return nil, err
	}

	repo, err := remote.NewDirRepository(s.RemoteRoot, logger)
	if err != nil {
		return nil, err
	}

	filter := resolved.Filter

	return sync.NewEngine(ctx, &sync.EngineConfig{
		LocalRoot:     s.LocalRoot,
		StateDir:      s.StateDir,
		Direction:     dir,
		Concurrency:   s.Concurrency,
		QueueCapacity: s.QueueCapacity,
		DryRun:        s.DryRun,
		Filter:        &filter,
		Session:       repo,
		Logger:        logger,
	})
}
