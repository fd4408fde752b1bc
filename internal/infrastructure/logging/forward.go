package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Forwarder defaults.
const (
	defaultQueueSize     = 256
	defaultBatchSize     = 50
	defaultFlushInterval = 2 * time.Second
	defaultSendTimeout   = 5 * time.Second
)

// Entry is one log record as delivered to a RemoteSink.
// Attribute values are flattened to strings; grouped keys are dot-joined.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// RemoteSink receives batches of forwarded log records.
// Implementations are called from a single background goroutine.
type RemoteSink interface {
	Send(ctx context.Context, entries []Entry) error
}

// ForwarderOptions configures a Forwarder.
type ForwarderOptions struct {
	// Level is the minimum level forwarded. Default: warn.
	Level slog.Level

	// QueueSize bounds the number of pending records. Records arriving
	// while the queue is full are dropped and counted.
	QueueSize int

	// BatchSize triggers an early flush. Default: 50.
	BatchSize int

	// FlushInterval is the maximum delay before pending records are sent.
	FlushInterval time.Duration

	// OnError is called when a batch cannot be delivered. It must not log
	// through a logger that forwards to the same sink.
	OnError func(err error)
}

// Forwarder ships log records to a RemoteSink asynchronously.
//
// Logging never blocks on the remote service: records are queued and sent
// in batches by a background goroutine, and dropped when the queue is full.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Forwarder struct {
	sink          RemoteSink
	level         slog.Level
	batchSize     int
	flushInterval time.Duration
	onError       func(err error)

	queue   chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
	once    sync.Once

	dropped atomic.Uint64
	sent    atomic.Uint64
}

// NewForwarder creates a forwarder for sink. Call Start before logging.
func NewForwarder(sink RemoteSink, opts ForwarderOptions) *Forwarder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}

	return &Forwarder{
		sink:          sink,
		level:         opts.Level,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		onError:       opts.OnError,
		queue:         make(chan Entry, opts.QueueSize),
		done:          make(chan struct{}),
	}
}

// Start launches the background delivery goroutine.
func (f *Forwarder) Start() {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	f.wg.Add(1)
	go f.loop()
}

// Close stops accepting records, delivers what is queued and waits for the
// background goroutine. Safe to call multiple times.
func (f *Forwarder) Close() {
	f.once.Do(func() {
		f.closed.Store(true)
		close(f.done)
		f.wg.Wait()
	})
}

// Enabled reports whether records at level are forwarded.
func (f *Forwarder) Enabled(level slog.Level) bool {
	return level >= f.level
}

// Enqueue queues an entry without blocking.
// It returns false if the entry was dropped.
func (f *Forwarder) Enqueue(e Entry) bool {
	if f.closed.Load() {
		f.dropped.Add(1)
		return false
	}
	select {
	case f.queue <- e:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of records discarded because the queue was full
// or the forwarder was closed.
func (f *Forwarder) Dropped() uint64 {
	return f.dropped.Load()
}

// Sent returns the number of records successfully delivered.
func (f *Forwarder) Sent() uint64 {
	return f.sent.Load()
}

// loop batches queued entries and flushes on size or timer.
func (f *Forwarder) loop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, f.batchSize)
	for {
		select {
		case e := <-f.queue:
			batch = append(batch, e)
			if len(batch) >= f.batchSize {
				batch = f.flush(batch)
			}
		case <-ticker.C:
			batch = f.flush(batch)
		case <-f.done:
			// Drain whatever is still queued, then deliver once.
			for {
				select {
				case e := <-f.queue:
					batch = append(batch, e)
				default:
					f.flush(batch)
					return
				}
			}
		}
	}
}

// flush sends batch and returns an empty slice ready for reuse.
func (f *Forwarder) flush(batch []Entry) []Entry {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
	defer cancel()

	if err := f.sink.Send(ctx, batch); err != nil {
		if f.onError != nil {
			f.onError(err)
		}
	} else {
		f.sent.Add(uint64(len(batch)))
	}

	return make([]Entry, 0, f.batchSize)
}

// forwardingHandler tees records to the local handler and to forwarders.
type forwardingHandler struct {
	next       slog.Handler
	forwarders []*Forwarder
	attrs      []slog.Attr
	groups     []string
}

func newForwardingHandler(next slog.Handler, forwarders []*Forwarder) *forwardingHandler {
	return &forwardingHandler{next: next, forwarders: forwarders}
}

func (h *forwardingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next.Enabled(ctx, level) {
		return true
	}
	for _, f := range h.forwarders {
		if f.Enabled(level) {
			return true
		}
	}
	return false
}

func (h *forwardingHandler) Handle(ctx context.Context, r slog.Record) error {
	var entry *Entry
	for _, f := range h.forwarders {
		if !f.Enabled(r.Level) {
			continue
		}
		if entry == nil {
			e := h.entry(r)
			entry = &e
		}
		f.Enqueue(*entry)
	}

	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *forwardingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		prefixed = append(prefixed, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &forwardingHandler{
		next:       h.next.WithAttrs(attrs),
		forwarders: h.forwarders,
		attrs:      prefixed,
		groups:     h.groups,
	}
}

func (h *forwardingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &forwardingHandler{
		next:       h.next.WithGroup(name),
		forwarders: h.forwarders,
		attrs:      h.attrs,
		groups:     groups,
	}
}

// key applies the current group prefix to an attribute key.
func (h *forwardingHandler) key(k string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		k = h.groups[i] + "." + k
	}
	return k
}

// entry flattens a record and the handler's accumulated attributes.
func (h *forwardingHandler) entry(r slog.Record) Entry {
	attrs := make(map[string]string, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		flattenAttr(attrs, a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(attrs, h.key(a.Key), a.Value)
		return true
	})

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}

	return Entry{
		Time:    t,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	}
}

func flattenAttr(dst map[string]string, key string, v slog.Value) {
	v = v.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, a := range v.Group() {
			k := a.Key
			if key != "" {
				k = key + "." + k
			}
			flattenAttr(dst, k, a.Value)
		}
		return
	}
	if key == "" {
		return
	}
	dst[key] = v.String()
}
