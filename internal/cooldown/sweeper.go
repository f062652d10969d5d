package cooldown

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunSweeper prunes expired cooldown state every interval until ctx is done.
// Checks prune lazily as well; this only bounds memory for idle entities.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("cooldown sweep")
			}
		}
	}
}
