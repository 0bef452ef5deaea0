package session

import (
	"context"
	"log"
	"time"
)

// StartJanitor periodically removes expired tokens until ctx is done. onExpire
// receives the number of tokens removed in each sweep that removed any.
func StartJanitor(ctx context.Context, store Store, interval time.Duration, onExpire func(n int)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.ExpireStale(ctx)
				if err != nil {
					log.Printf("session janitor: %v", err)
					continue
				}
				if n > 0 && onExpire != nil {
					onExpire(n)
				}
			}
		}
	}()
}
