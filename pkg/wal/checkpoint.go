package wal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCheckpointInterval is how often the background checkpointer runs
const DefaultCheckpointInterval = 5 * time.Minute

// CheckpointFunc takes a snapshot and truncates the journal behind it
type CheckpointFunc func(ctx context.Context) error

// Checkpointer runs a CheckpointFunc on a fixed interval until stopped
type Checkpointer struct {
	interval time.Duration
	fn       CheckpointFunc
	log      zerolog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCheckpointer creates a checkpointer; a non-positive interval uses
// DefaultCheckpointInterval
func NewCheckpointer(interval time.Duration, fn CheckpointFunc, logger zerolog.Logger) *Checkpointer {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Checkpointer{
		interval: interval,
		fn:       fn,
		log:      logger.With().Str("component", "checkpointer").Logger(),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop
func (c *Checkpointer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop ends the loop and waits for an in-flight checkpoint to finish
func (c *Checkpointer) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			close(c.done)
			return
		}
		c.cancel()
		<-c.done
	})
}

func (c *Checkpointer) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			if err := c.fn(ctx); err != nil {
				c.log.Error().Err(err).Msg("checkpoint failed")
				continue
			}
			c.log.Debug().Dur("took", time.Since(start)).Msg("checkpoint complete")
		case <-ctx.Done():
			return
		}
	}
}
