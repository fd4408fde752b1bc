package collector

import (
	"context"
	"sync/atomic"
	"time"
)

// State is the scheduler's position in its loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// CycleFunc runs one cycle that started at start.
type CycleFunc func(ctx context.Context, start time.Time)

// Scheduler runs a cycle every interval, measured from the previous start.
// Cycles never overlap; an overrun is followed by the next cycle at once.
type Scheduler struct {
	interval time.Duration
	cycle    CycleFunc
	logger   Logger
	metrics  *Metrics

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	state  atomic.Int32
	cycles atomic.Uint64
}

// NewScheduler creates a scheduler.
func NewScheduler(interval time.Duration, cycle CycleFunc) (*Scheduler, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Scheduler{
		interval: interval,
		cycle:    cycle,
		logger:   noopLogger{},
		now:      time.Now,
		wait:     sleepContext,
	}, nil
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics sets where overruns are counted.
func (s *Scheduler) SetMetrics(m *Metrics) {
	s.metrics = m
}

// State returns whether a cycle is in progress.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns the number of cycles started.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Run loops until ctx is cancelled. The first cycle starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		start := s.now()

		s.state.Store(int32(StateRunning))
		s.cycles.Add(1)
		s.cycle(ctx, start)
		s.state.Store(int32(StateIdle))

		next := start.Add(s.interval)
		delay := next.Sub(s.now())
		if delay < 0 {
			s.logger.Debug("cycle overran interval",
				"interval", s.interval,
				"overrun", -delay,
			)
			s.metrics.observeOverrun()
			delay = 0
		}

		s.logger.Debug("waiting for next reporting time", "delay", delay)
		if err := s.wait(ctx, delay); err != nil {
			break
		}
	}
	return nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
