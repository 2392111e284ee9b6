package videogen

import (
	"slices"
	"sync"
	"time"
)

// DefaultPhrases are shown in turn while a video renders.
var DefaultPhrases = []string{
	"Warming up the video cameras...",
	"Action! Your video generation has started.",
	"This can take a few minutes, please wait...",
	"Gathering pixels and arranging them perfectly.",
	"Rendering the final cut.",
	"Almost there, adding the finishing touches!",
}

// DefaultStatusInterval is how long each phrase stays on screen.
const DefaultStatusInterval = 5 * time.Second

// Rotator emits a fixed list of status phrases in a loop until stopped.
type Rotator struct {
	phrases  []string
	interval time.Duration
	emit     func(string)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewRotator creates a rotator calling emit with each phrase. Empty phrases
// select DefaultPhrases and a non-positive interval DefaultStatusInterval.
func NewRotator(phrases []string, interval time.Duration, emit func(string)) *Rotator {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return &Rotator{
		phrases:  slices.Clone(phrases),
		interval: interval,
		emit:     emit,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start emits the first phrase and then the next one every interval,
// wrapping around at the end. Only the first call has an effect.
func (r *Rotator) Start() {
	r.startOnce.Do(func() {
		r.emit(r.phrases[0])
		go r.loop()
	})
}

func (r *Rotator) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			i = (i + 1) % len(r.phrases)
			// Stop may have raced the tick.
			select {
			case <-r.stop:
				return
			default:
			}
			r.emit(r.phrases[i])
		}
	}
}

// Stop halts the rotation and waits for the ticker goroutine to exit, so
// no phrase is emitted after it returns. It reports whether this call did
// the stopping; later calls are no-ops returning false.
func (r *Rotator) Stop() bool {
	stopped := false
	r.stopOnce.Do(func() {
		stopped = true
		close(r.stop)
		// Never started: nothing to wait for, and Start becomes a no-op.
		r.startOnce.Do(func() { close(r.done) })
		<-r.done
	})
	return stopped
}
