package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunJanitor evicts pending requests older than ttl every period until ctx
// is done. Requests whose connection dropped before an id was assigned
// would otherwise stay in the table forever.
func RunJanitor(ctx context.Context, s *ServerState, period, ttl time.Duration) {
	if period <= 0 || ttl <= 0 {
		log.Info().Str("module", "app.janitor").Msg("pending eviction disabled")
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.janitor").Msg("janitor ctx done")
			return
		case <-ticker.C:
			if n := s.EvictStalePending(ttl); n > 0 {
				log.Info().Str("module", "app.janitor").Int("evicted", n).Dur("ttl", ttl).Msg("evicted stale pending requests")
			}
		}
	}
}
