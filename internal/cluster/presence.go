package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// StatusSetter is the set of shards owned by this process.
type StatusSetter interface {
	ShardIDs() []int
	SetStatus(shardID int, text string) error
}

// PresenceText is the status shown on one shard.
func PresenceText(t Totals, shardID int) string {
	return fmt.Sprintf("Serving %d guilds and %d members on shard #%d", t.Guilds, t.Members, shardID)
}

// RunPresence refreshes every local shard's status with bot-wide totals, once
// at start and then every interval, until ctx is done. Failed rounds are
// logged and skipped.
func RunPresence(ctx context.Context, agg *Aggregator, shards StatusSetter, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		UpdatePresence(ctx, agg, shards)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// UpdatePresence runs one refresh round.
func UpdatePresence(ctx context.Context, agg *Aggregator, shards StatusSetter) {
	totals, err := agg.Totals(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to update status")
		return
	}
	if len(totals.Missing) > 0 {
		log.Warn().Strs("missing", totals.Missing).Msg("presence totals are partial")
	}
	for _, id := range shards.ShardIDs() {
		if err := shards.SetStatus(id, PresenceText(totals, id)); err != nil {
			log.Warn().Err(err).Int("shard", id).Msg("failed to set status")
		}
	}
}
