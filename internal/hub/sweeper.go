package hub

import (
	"context"
	"log"
	"sync"
	"time"
)

// SweepResult counts what one sweep removed on one channel
type SweepResult struct {
	Channel string
	Probed  int // evicted because the liveness probe failed
	Expired int // evicted for idling past the session timeout
}

// Sweeper periodically probes liveness and purges idle sessions on every hub
// ARCHITECTURAL DISCOVERY: One background task serves all channels; it runs
// on a fixed period independent of connection activity and has its own
// Start/Stop lifecycle owned by the application
type Sweeper struct {
	hubs     []*Hub
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	after   []func()
}

// NewSweeper creates a stopped sweeper over hubs
func NewSweeper(interval, timeout time.Duration, hubs ...*Hub) *Sweeper {
	return &Sweeper{
		hubs:     hubs,
		interval: interval,
		timeout:  timeout,
	}
}

// Start launches the periodic task. It stops when ctx ends or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSweeperAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	log.Printf("[sweeper] Starting: interval=%s timeout=%s channels=%d", s.interval, s.timeout, len(s.hubs))
	go s.run(runCtx, s.done)
	return nil
}

// Stop ends the periodic task and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSweeperNotRunning
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	log.Println("[sweeper] Stopped")
	return nil
}

// After registers fn to run at the end of every sweep. Call before Start.
func (s *Sweeper) After(fn func()) {
	s.mu.Lock()
	s.after = append(s.after, fn)
	s.mu.Unlock()
}

// IsRunning reports whether the periodic task is active
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one tick: probe every session, then expire idle ones
func (s *Sweeper) Sweep() []SweepResult {
	results := make([]SweepResult, 0, len(s.hubs))
	for _, h := range s.hubs {
		r := SweepResult{Channel: h.Channel()}
		r.Probed = h.Probe()
		if s.timeout > 0 {
			r.Expired = len(h.ExpireIdle(s.timeout))
		}
		if r.Probed > 0 || r.Expired > 0 {
			log.Printf("[sweeper] channel=%s probe_failed=%d expired=%d", r.Channel, r.Probed, r.Expired)
		}
		results = append(results, r)
	}

	s.mu.Lock()
	after := s.after
	s.mu.Unlock()
	for _, fn := range after {
		fn()
	}
	return results
}
