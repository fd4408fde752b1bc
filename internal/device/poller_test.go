package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// handleMap is a HandleFactory serving preset handles by address.
func handleMap(handles map[string]Handle) HandleFactory {
	return func(e Entry) (Handle, error) {
		return handles[e.Address], nil
	}
}

func okHandle(on bool) Handle {
	return HandleFunc(func(context.Context) (Snapshot, error) {
		rssi := -50
		return Snapshot{Reading: Reading{On: on, RSSI: &rssi}}, nil
	})
}

// blockingHandle waits for its context.
var blockingHandle = HandleFunc(func(ctx context.Context) (Snapshot, error) {
	<-ctx.Done()
	return Snapshot{}, ctx.Err()
})

type netTimeoutError struct{}

func (netTimeoutError) Error() string   { return "i/o timeout" }
func (netTimeoutError) Timeout() bool   { return true }
func (netTimeoutError) Temporary() bool { return true }

func newTestPoller(t *testing.T, timeout time.Duration, handles ...Handle) *Poller {
	t.Helper()

	entries := make([]Entry, len(handles))
	byAddr := make(map[string]Handle, len(handles))
	for i, h := range handles {
		addr := "10.0.0." + string(rune('1'+i)) + ":9999"
		entries[i] = Entry{Address: addr, Feed: "f", Kind: KindPlug}
		byAddr[addr] = h
	}

	r, err := NewRegistry(entries...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	p, err := NewPoller(r, handleMap(byAddr), timeout)
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}
	return p
}

func TestPoller_OutcomesAlignedWithRegistry(t *testing.T) {
	errRefused := errors.New("connection refused")

	p := newTestPoller(t, 100*time.Millisecond,
		okHandle(true),
		HandleFunc(func(context.Context) (Snapshot, error) { return Snapshot{}, errRefused }),
		blockingHandle,
		HandleFunc(func(context.Context) (Snapshot, error) { return Snapshot{}, netTimeoutError{} }),
		okHandle(false),
	)

	outcomes := p.Poll(context.Background())

	want := []OutcomeKind{OutcomeSuccess, OutcomeFailure, OutcomeTimeout, OutcomeTimeout, OutcomeSuccess}
	if len(outcomes) != len(want) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(want))
	}
	for i, w := range want {
		if outcomes[i].Kind != w {
			t.Errorf("outcomes[%d].Kind = %v, want %v (err %v)", i, outcomes[i].Kind, w, outcomes[i].Err)
		}
	}
	if !errors.Is(outcomes[1].Err, errRefused) {
		t.Errorf("outcomes[1].Err = %v, want errRefused", outcomes[1].Err)
	}
	if !outcomes[0].Snapshot.On || outcomes[4].Snapshot.On {
		t.Error("snapshots not aligned with their devices")
	}
}

func TestPoller_SlowDeviceBoundedByTimeout(t *testing.T) {
	const timeout = 50 * time.Millisecond
	p := newTestPoller(t, timeout, blockingHandle, blockingHandle, okHandle(true))

	start := time.Now()
	outcomes := p.Poll(context.Background())
	elapsed := time.Since(start)

	// Concurrent: two blocked devices cost one timeout, not two.
	if elapsed > 10*timeout {
		t.Errorf("Poll() took %v, want about %v", elapsed, timeout)
	}
	if outcomes[2].Kind != OutcomeSuccess {
		t.Errorf("fast device outcome = %v, want success", outcomes[2].Kind)
	}
}

func TestPoller_HandleIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32

	stubborn := HandleFunc(func(context.Context) (Snapshot, error) {
		if calls.Add(1) == 1 {
			<-release
			return Snapshot{Reading: Reading{On: false}}, nil
		}
		return Snapshot{Reading: Reading{On: true}}, nil
	})
	p := newTestPoller(t, 20*time.Millisecond, stubborn)

	if o := p.Poll(context.Background())[0]; o.Kind != OutcomeTimeout {
		t.Fatalf("first Poll() = %v, want timeout", o.Kind)
	}

	o := p.Poll(context.Background())[0]
	if o.Kind != OutcomeTimeout || !errors.Is(o.Err, ErrQueryInFlight) {
		t.Fatalf("second Poll() = %v (%v), want timeout with ErrQueryInFlight", o.Kind, o.Err)
	}
	if calls.Load() != 1 {
		t.Fatalf("in-flight device was queried again (%d calls)", calls.Load())
	}

	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		o = p.Poll(context.Background())[0]
		if o.Kind == OutcomeSuccess || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if o.Kind != OutcomeSuccess || !o.Snapshot.On {
		t.Fatalf("Poll() after release = %+v, want fresh success", o)
	}

	// The stale snapshot (On=false) must never have been stored.
	if s := p.Status()[0]; s.Snapshot == nil || !s.Snapshot.On {
		t.Errorf("Status snapshot = %+v, want fresh snapshot", s.Snapshot)
	}
}

func TestPoller_ParentCancellation(t *testing.T) {
	p := newTestPoller(t, time.Minute, blockingHandle)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var outcomes []Outcome
	go func() {
		defer wg.Done()
		outcomes = p.Poll(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	if outcomes[0].Kind != OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout after cancellation", outcomes[0].Kind)
	}
}

func TestPoller_Status(t *testing.T) {
	p := newTestPoller(t, 50*time.Millisecond,
		okHandle(true),
		HandleFunc(func(context.Context) (Snapshot, error) { return Snapshot{}, errors.New("boom") }),
	)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	if s := p.Status(); s[0].Polled || s[1].Polled {
		t.Fatal("devices reported as polled before Poll()")
	}

	p.Poll(context.Background())
	status := p.Status()

	if !status[0].Polled || status[0].LastOutcome != OutcomeSuccess || !status[0].LastSuccess.Equal(fixed) {
		t.Errorf("status[0] = %+v", status[0])
	}
	if status[0].Snapshot == nil || !status[0].Snapshot.On {
		t.Errorf("status[0].Snapshot = %+v", status[0].Snapshot)
	}
	if status[1].LastOutcome != OutcomeFailure || status[1].LastError != "boom" || !status[1].LastSuccess.IsZero() {
		t.Errorf("status[1] = %+v", status[1])
	}
}

func TestNewPoller_FactoryErrors(t *testing.T) {
	r, err := NewRegistry(Entry{Address: "h:1"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	errFactory := errors.New("unsupported")
	if _, err := NewPoller(r, func(Entry) (Handle, error) { return nil, errFactory }, 0); !errors.Is(err, errFactory) {
		t.Errorf("NewPoller() error = %v, want factory error", err)
	}
	if _, err := NewPoller(r, func(Entry) (Handle, error) { return nil, nil }, 0); !errors.Is(err, ErrNoHandle) {
		t.Errorf("NewPoller() error = %v, want ErrNoHandle", err)
	}

	p, err := NewPoller(r, func(Entry) (Handle, error) { return okHandle(true), nil }, 0)
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}
	if p.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", p.Timeout(), DefaultTimeout)
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", errors.Join(errors.New("read"), context.DeadlineExceeded), true},
		{"net timeout", netTimeoutError{}, true},
		{"cancelled", context.Canceled, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
