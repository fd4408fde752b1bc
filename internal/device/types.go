package device

import (
	"context"
	"maps"
	"slices"

	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
)

// Kind selects how a device's snapshot is turned into measurements.
type Kind int

const (
	// KindUnknown is any configured kind this build does not understand.
	KindUnknown Kind = iota
	// KindPlug is a single-outlet device.
	KindPlug
	// KindStrip is a multi-outlet device with per-channel readings.
	KindStrip
)

// ParseKind maps a configuration string onto a Kind.
func ParseKind(s string) Kind {
	switch config.NormaliseKind(s) {
	case "plug":
		return KindPlug
	case "strip":
		return KindStrip
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindPlug:
		return "plug"
	case KindStrip:
		return "strip"
	default:
		return "unknown"
	}
}

// Entry is one configured device. Entries are immutable once the registry
// is built.
type Entry struct {
	// Address is host:port of the device.
	Address string

	// Feed names the device in emitted measurements. An empty feed means the
	// device is configured but never reported.
	Feed string

	// Tags are added to every measurement of the device.
	Tags map[string]string

	// Channels names the outlets of a strip by index. An empty name excludes
	// that outlet; outlets past the end of the list are unnamed.
	Channels []string

	Kind Kind
}

// Silenced reports whether the entry has no feed.
func (e Entry) Silenced() bool {
	return e.Feed == ""
}

// ChannelName returns the configured name of outlet i, or "" when the
// outlet is excluded or beyond the configured list.
func (e Entry) ChannelName(i int) string {
	if i < 0 || i >= len(e.Channels) {
		return ""
	}
	return e.Channels[i]
}

func (e Entry) clone() Entry {
	e.Tags = maps.Clone(e.Tags)
	e.Channels = slices.Clone(e.Channels)
	return e
}

// Meter is an energy meter reading in the device's native units.
type Meter struct {
	VoltageMV float64 `json:"voltage_mv"`
	CurrentMA float64 `json:"current_ma"`
	PowerMW   float64 `json:"power_mw"`
	TotalWh   float64 `json:"total_wh"`
}

// Reading is the state of one outlet, or of a whole single-outlet device.
type Reading struct {
	On bool `json:"on"`

	// RSSI is nil when the outlet reports no signal strength of its own.
	RSSI *int `json:"rssi,omitempty"`

	// Meter is nil when the device has no energy meter.
	Meter *Meter `json:"meter,omitempty"`
}

// Snapshot is the result of one successful query.
type Snapshot struct {
	Reading

	// Children holds one reading per outlet of a strip, in outlet order.
	Children []Reading `json:"children,omitempty"`
}

// Handle queries one physical device.
//
// Query should honour ctx. A handle that ignores it is tolerated: the
// poller stops waiting at the deadline and skips the device until the
// query returns.
type Handle interface {
	Query(ctx context.Context) (Snapshot, error)
}

// HandleFunc adapts a function to Handle.
type HandleFunc func(ctx context.Context) (Snapshot, error)

// Query calls f(ctx).
func (f HandleFunc) Query(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// HandleFactory creates the handle for a registry entry.
type HandleFactory func(Entry) (Handle, error)

// OutcomeKind classifies a poll result.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTimeout
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of polling one device in one cycle.
type Outcome struct {
	Kind OutcomeKind

	// Snapshot is set for OutcomeSuccess.
	Snapshot Snapshot

	// Err is set for OutcomeTimeout and OutcomeFailure.
	Err error
}
