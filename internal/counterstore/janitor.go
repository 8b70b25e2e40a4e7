package counterstore

import (
	"sync"
	"time"
)

// janitor runs purge on a ticker until stopped.
type janitor struct {
	interval time.Duration
	purge    func()

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// startJanitor returns nil when interval is not positive.
func startJanitor(interval time.Duration, purge func()) *janitor {
	if interval <= 0 {
		return nil
	}
	j := &janitor{
		interval: interval,
		purge:    purge,
		done:     make(chan struct{}),
	}
	j.wg.Add(1)
	go j.run()
	return j
}

func (j *janitor) run() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.purge()
		}
	}
}

// stop is safe to call on a nil janitor and more than once.
func (j *janitor) stop() {
	if j == nil {
		return
	}
	j.once.Do(func() {
		close(j.done)
	})
	j.wg.Wait()
}
