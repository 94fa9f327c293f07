package platform

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultPollInterval = 2 * time.Second
	stuckAfter          = 60 * time.Second
	maxPollFailures     = 5
)

// WaitRollout polls a rollout until every task reaches a terminal
// status. It returns an error when any task fails, when the rollout
// sits entirely NOT_STARTED for a minute, or when reads keep failing.
// A poll read error does not mean the rollout failed; the caller must
// treat it as an unknown outcome.
func (c *Client) WaitRollout(ctx context.Context, name string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	start := time.Now()
	failures := 0
	for {
		r, err := c.GetRollout(ctx, name)
		if err != nil {
			failures++
			if failures >= maxPollFailures {
				return fmt.Errorf("poll rollout %s: %w", name, err)
			}
		} else {
			failures = 0
			if r.complete() {
				if r.succeeded() {
					return nil
				}
				return fmt.Errorf("rollout %s: %s", name, r.failureMessage())
			}
			if r.allNotStarted() && time.Since(start) > stuckAfter {
				return fmt.Errorf("rollout %s has not started after %s; check rollout policy and approvals", name, stuckAfter)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
