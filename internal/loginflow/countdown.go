package loginflow

import (
	"sync"
	"time"

	"github.com/BradenHooton/billdesk/internal/clock"
)

// countdown is the recurring tick behind the OTP expiry display. It owns
// one goroutine and one ticker; Stop releases both and may be called any
// number of times.
type countdown struct {
	ticker   *clock.Ticker
	stop     chan struct{}
	stopOnce sync.Once
}

func startCountdown(clk clock.Clock, interval time.Duration, tick func()) *countdown {
	cd := &countdown{
		ticker: clk.NewTicker(interval),
		stop:   make(chan struct{}),
	}
	go cd.run(tick)
	return cd
}

func (cd *countdown) run(tick func()) {
	for {
		select {
		case <-cd.stop:
			return
		case <-cd.ticker.C:
			tick()
		}
	}
}

// Stop does not wait for an in-progress tick.
func (cd *countdown) Stop() {
	cd.stopOnce.Do(func() {
		cd.ticker.Stop()
		close(cd.stop)
	})
}
