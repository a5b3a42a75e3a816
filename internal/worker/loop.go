package worker

import (
	"context"
	"time"

	"sttworker/internal/ocs"
)

// Run is the dispatch loop. It processes one task at a time and returns
// only when ctx is cancelled.
func Run(ctx context.Context, c *Context) error {
	c.logger.Info().Strs("providers", c.providerIDs).Msg("worker loop started")
	defer c.logger.Info().Msg("worker loop stopped")
	taskTypes := []string{c.settings.TaskType}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !c.Gate.Enabled() {
			c.setState(StateIdle)
			if !sleep(ctx, c.settings.DisabledPollInterval) {
				return nil
			}
			continue
		}

		c.setState(StatePolling)
		nt, err := c.client.NextTask(ctx, c.providerIDs, taskTypes)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			pollErrorsTotal.Inc()
			c.logger.Error().Err(err).Dur("retry_in", c.settings.ErrorInterval).Msg("next task failed")
			c.remoteLog(ctx, ocs.LogError, err.Error())
			c.wait(ctx, c.settings.ErrorInterval)
			continue
		}
		if nt == nil {
			c.wait(ctx, 0)
			continue
		}

		c.setState(StateProcessing)
		c.process(ctx, nt)
	}
}

func (c *Context) wait(ctx context.Context, override time.Duration) {
	if c.Waiter.Wait(ctx, override) {
		c.logger.Debug().Dur("interval", c.Waiter.Interval()).Msg("woken by trigger")
	}
	waitIntervalSeconds.Set(c.Waiter.Interval().Seconds())
}

// sleep waits for d or ctx, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
