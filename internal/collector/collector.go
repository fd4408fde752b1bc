package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/kasametrics/internal/device"
)

// Default collector settings.
const (
	DefaultWriteTimeout = 10 * time.Second
	recentCycles        = 64
)

// Logger defines the logging interface used by the collector.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Poller is the part of device.Poller the collector uses.
type Poller interface {
	Poll(ctx context.Context) []device.Outcome
}

// Recorder persists cycle reports.
type Recorder interface {
	Record(ctx context.Context, report CycleReport) error
}

// DeviceResult is how one device fared in a cycle.
type DeviceResult struct {
	Address      string
	Feed         string
	Outcome      string
	Error        string
	Measurements int
}

// CycleReport summarises one cycle.
type CycleReport struct {
	ID           string
	Start        time.Time
	Duration     time.Duration
	OK           int
	TimedOut     int
	Failed       int
	Skipped      int
	Measurements int
	WriteErr     error
	Devices      []DeviceResult
}

// Options configure a Collector. Zero values select defaults.
type Options struct {
	// Measurement is the point name. Default: "power".
	Measurement string

	// WriteTimeout bounds the batch write. Default: 10s.
	WriteTimeout time.Duration

	Logger   Logger
	Metrics  *Metrics
	Recorder Recorder

	// ErrorKind names the class of a device failure for the error_kind log
	// attribute. Default: the Go type of the innermost error.
	ErrorKind func(error) string
}

// Collector runs poll cycles against one registry and one sink.
//
// Thread Safety: RunCycle must not be called concurrently with itself;
// the Scheduler guarantees this. Recent may be called at any time.
type Collector struct {
	registry *device.Registry
	poller   Poller
	sink     Sink
	opts     Options
	now      func() time.Time

	mu     sync.RWMutex
	recent []CycleReport
}

// New creates a collector.
func New(registry *device.Registry, poller Poller, sink Sink, opts Options) *Collector {
	if opts.Measurement == "" {
		opts.Measurement = DefaultMeasurement
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.ErrorKind == nil {
		opts.ErrorKind = defaultErrorKind
	}

	return &Collector{
		registry: registry,
		poller:   poller,
		sink:     sink,
		opts:     opts,
		now:      time.Now,
	}
}

// RunCycle polls every device, builds the batch and writes it once.
// Device and sink failures are logged and reported, never returned.
func (c *Collector) RunCycle(ctx context.Context, start time.Time) CycleReport {
	log := c.opts.Logger
	report := CycleReport{
		ID:      uuid.NewString(),
		Start:   start,
		Devices: make([]DeviceResult, c.registry.Len()),
	}
	ts := CycleTime(start)

	log.Debug("requesting device updates", "cycle_id", report.ID, "devices", c.registry.Len())
	outcomes := c.poller.Poll(ctx)

	var batch []*write.Point
	for i, o := range outcomes {
		entry := c.registry.Entry(i)
		res := DeviceResult{Address: entry.Address, Feed: entry.Feed, Outcome: o.Kind.String()}
		if o.Err != nil {
			res.Error = o.Err.Error()
		}

		switch {
		case entry.Silenced():
			res.Outcome = outcomeSkipped
			report.Skipped++

		case o.Kind == device.OutcomeTimeout:
			report.TimedOut++

		case o.Kind == device.OutcomeFailure:
			report.Failed++
			log.Warn("device query failed",
				"address", entry.Address,
				"feed", entry.Feed,
				"error_kind", c.opts.ErrorKind(o.Err),
				"error", o.Err,
			)

		default:
			ms, err := Build(c.opts.Measurement, entry, o.Snapshot, ts)
			if err != nil {
				report.Failed++
				res.Outcome = device.OutcomeFailure.String()
				res.Error = err.Error()
				log.Error("unsupported device kind",
					"address", entry.Address,
					"feed", entry.Feed,
					"kind", entry.Kind.String(),
				)
				break
			}
			report.OK++
			res.Measurements = len(ms)
			for _, m := range ms {
				batch = append(batch, m.Point())
			}
		}
		report.Devices[i] = res
	}
	report.Measurements = len(batch)

	log.Debug("uploading measurements", "cycle_id", report.ID, "points", len(batch))
	writeCtx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	report.WriteErr = c.sink.WritePoints(writeCtx, batch...)
	cancel()
	if report.WriteErr != nil {
		log.Error("batch write failed",
			"cycle_id", report.ID,
			"points", len(batch),
			"error", report.WriteErr,
		)
	}

	report.Duration = c.now().Sub(start)
	log.Debug("cycle complete",
		"cycle_id", report.ID,
		"run_time", report.Duration,
		"ok", report.OK,
		"timeout", report.TimedOut,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)

	c.opts.Metrics.observeCycle(report)
	c.remember(report)

	if c.opts.Recorder != nil {
		if err := c.opts.Recorder.Record(ctx, report); err != nil {
			log.Warn("recording cycle history failed", "cycle_id", report.ID, "error", err)
		}
	}

	return report
}

func (c *Collector) remember(r CycleReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, r)
	if len(c.recent) > recentCycles {
		c.recent = c.recent[len(c.recent)-recentCycles:]
	}
}

// Recent returns up to limit of the latest in-memory reports, newest first.
func (c *Collector) Recent(_ context.Context, limit int) ([]CycleReport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 || limit > len(c.recent) {
		limit = len(c.recent)
	}
	out := make([]CycleReport, 0, limit)
	for i := len(c.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, c.recent[i])
	}
	return out, nil
}

// defaultErrorKind names the innermost error's type.
func defaultErrorKind(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
