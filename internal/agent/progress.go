package agent

import (
	"sync"
	"time"
)

// Progress is a local, time-based progress indicator for long-running work.
// It advances a fixed step every interval until it reaches 100 or is
// stopped. It knows nothing about the work itself; stopping it does not
// cancel anything.
type Progress struct {
	mu      sync.Mutex
	percent int

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartProgress starts a ticker. report, if non-nil, is called from the
// ticker goroutine with each new percentage.
func StartProgress(interval time.Duration, step int, report func(percent int)) *Progress {
	if step <= 0 {
		step = 1
	}
	p := &Progress{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.run(interval, step, report)
	return p
}

func (p *Progress) run(interval time.Duration, step int, report func(int)) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.percent = min(p.percent+step, 100)
			pct := p.percent
			p.mu.Unlock()

			if report != nil {
				report(pct)
			}
			if pct >= 100 {
				return
			}
		}
	}
}

// Percent returns the current value.
func (p *Progress) Percent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

// Stop halts the ticker and waits for it to exit. Safe to call repeatedly.
func (p *Progress) Stop() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

// Done is closed once the ticker has exited.
func (p *Progress) Done() <-chan struct{} {
	return p.done
}
