package scheduler

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// sleepOn waits d on clk. It returns early with ctx.Err() when ctx is
// cancelled.
func sleepOn(ctx context.Context, clk clock.Clock, d time.Duration) error {
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
