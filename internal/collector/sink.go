package collector

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Sink receives the batch of a cycle. Both the InfluxDB and the
// VictoriaMetrics clients implement it.
type Sink interface {
	// WritePoints writes the whole batch or fails. An empty batch is a no-op.
	WritePoints(ctx context.Context, points ...*write.Point) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, points ...*write.Point) error

// WritePoints calls f.
func (f SinkFunc) WritePoints(ctx context.Context, points ...*write.Point) error {
	return f(ctx, points...)
}
