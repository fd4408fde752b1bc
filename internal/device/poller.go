package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single device query.
const DefaultTimeout = 5 * time.Second

// Poller queries every device in a registry concurrently.
//
// Thread Safety: Poll must not be called concurrently with itself. Status
// may be called at any time.
type Poller struct {
	registry *Registry
	handles  []Handle
	cells    []cell
	timeout  time.Duration
	logger   Logger
	now      func() time.Time
}

// cell is the per-device state slot. Only the poll goroutine for its index
// writes it; mu lets Status read it concurrently.
type cell struct {
	busy atomic.Bool

	mu          sync.RWMutex
	snapshot    *Snapshot
	lastOutcome OutcomeKind
	lastErr     error
	lastPoll    time.Time
	lastSuccess time.Time
	polled      bool
}

// Status is the latest known state of one device.
type Status struct {
	Entry       Entry
	Polled      bool
	LastOutcome OutcomeKind
	LastError   string
	LastPoll    time.Time
	LastSuccess time.Time
	Snapshot    *Snapshot
}

type queryResult struct {
	snapshot Snapshot
	err      error
}

// NewPoller creates a poller with one handle per registry entry.
// A non-positive timeout selects DefaultTimeout.
func NewPoller(registry *Registry, factory HandleFactory, timeout time.Duration) (*Poller, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	handles := make([]Handle, registry.Len())
	for i := range handles {
		entry := registry.Entry(i)
		h, err := factory(entry)
		if err != nil {
			return nil, fmt.Errorf("creating handle for %s: %w", entry.Address, err)
		}
		if h == nil {
			return nil, fmt.Errorf("creating handle for %s: %w", entry.Address, ErrNoHandle)
		}
		handles[i] = h
	}

	return &Poller{
		registry: registry,
		handles:  handles,
		cells:    make([]cell, len(handles)),
		timeout:  timeout,
		logger:   noopLogger{},
		now:      time.Now,
	}, nil
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// Timeout returns the per-device query timeout.
func (p *Poller) Timeout() time.Duration {
	return p.timeout
}

// Poll queries every device once and returns outcomes aligned with registry
// order. It returns once every device has answered or timed out; it never
// fails as a whole.
func (p *Poller) Poll(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, len(p.handles))

	var g errgroup.Group
	for i := range p.handles {
		g.Go(func() error {
			outcomes[i] = p.pollOne(ctx, i)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // pollOne never returns an error

	return outcomes
}

func (p *Poller) pollOne(ctx context.Context, i int) Outcome {
	c := &p.cells[i]

	if !c.busy.CompareAndSwap(false, true) {
		p.logger.Debug("device query still in flight",
			"address", p.registry.entries[i].Address)
		o := Outcome{Kind: OutcomeTimeout, Err: ErrQueryInFlight}
		c.record(o, p.now())
		return o
	}

	qctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Buffered so an abandoned query can deliver and exit without a reader.
	results := make(chan queryResult, 1)
	go func() {
		snap, err := p.handles[i].Query(qctx)
		c.busy.Store(false)
		results <- queryResult{snapshot: snap, err: err}
	}()

	var o Outcome
	select {
	case r := <-results:
		o = classify(r)
		if o.Kind == OutcomeFailure && qctx.Err() != nil {
			// The handle gave up because its deadline passed or the cycle
			// was cancelled.
			o.Kind = OutcomeTimeout
		}
	case <-qctx.Done():
		o = Outcome{Kind: OutcomeTimeout, Err: qctx.Err()}
	}

	c.record(o, p.now())
	return o
}

// classify maps a query result onto an outcome.
func classify(r queryResult) Outcome {
	if r.err == nil {
		return Outcome{Kind: OutcomeSuccess, Snapshot: r.snapshot}
	}
	if IsTimeout(r.err) {
		return Outcome{Kind: OutcomeTimeout, Err: r.err}
	}
	return Outcome{Kind: OutcomeFailure, Err: r.err}
}

// IsTimeout reports whether err is a deadline expiry, from either a context
// or the network stack.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *cell) record(o Outcome, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.polled = true
	c.lastPoll = at
	c.lastOutcome = o.Kind
	c.lastErr = o.Err
	if o.Kind == OutcomeSuccess {
		snap := o.Snapshot
		c.snapshot = &snap
		c.lastSuccess = at
	}
}

// Status returns the latest state of every device in registry order.
func (p *Poller) Status() []Status {
	out := make([]Status, len(p.cells))
	for i := range p.cells {
		c := &p.cells[i]
		c.mu.RLock()
		s := Status{
			Entry:       p.registry.Entry(i),
			Polled:      c.polled,
			LastOutcome: c.lastOutcome,
			LastPoll:    c.lastPoll,
			LastSuccess: c.lastSuccess,
		}
		if c.lastErr != nil {
			s.LastError = c.lastErr.Error()
		}
		if c.snapshot != nil {
			snap := *c.snapshot
			s.Snapshot = &snap
		}
		c.mu.RUnlock()
		out[i] = s
	}
	return out
}
