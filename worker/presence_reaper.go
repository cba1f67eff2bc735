package worker

import (
	"context"
	"log"
	"time"
)

// PresencePurger is implemented by the service layer.
type PresencePurger interface {
	PurgeStalePresence(ctx context.Context) (int64, error)
}

// PresenceReaper is the backstop against leaked presence rows from
// ungraceful disconnects: crashed tabs and dropped connections never
// send an explicit leave, so their rows age out here instead.
type PresenceReaper struct {
	purger             PresencePurger
	tickerMilliseconds int
}

func NewPresenceReaper(purger PresencePurger, tickerMilliseconds int) *PresenceReaper {
	return &PresenceReaper{
		purger:             purger,
		tickerMilliseconds: tickerMilliseconds,
	}
}

func (r *PresenceReaper) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(r.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		purged, err := r.purger.PurgeStalePresence(ctx)
		if err != nil {
			log.Printf("Presence sweep failed: %v", err)
			return
		}
		if purged > 0 {
			log.Printf("Presence sweep purged %d stale records", purged)
		}
	}

	for {
		select {
		case <-ticker.C:
			sweep()

		case <-shutdownCtx.Done():
			return
		}
	}
}
