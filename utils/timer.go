package utils

import "time"

// StartTimer create a ticker trigger per interval, and return a channel
// which close trigger and release it.
func StartTimer(interval time.Duration, f func(time.Time)) chan struct{} {
	done := make(chan struct{}, 1)
	go func() {
		ticker := time.NewTicker(interval)
		for {
			select {
			case now := <-ticker.C:
				f(now)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return done
}
