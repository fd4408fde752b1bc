package device

import (
	"fmt"

	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
)

// Logger defines the logging interface used by the device package.
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

// Registry is the ordered, immutable list of configured devices.
//
// Registry indices are stable for the life of the process and are used to
// align poll outcomes and snapshot cells with their entries.
type Registry struct {
	entries []Entry
}

// NewRegistry builds a registry from entries in the given order.
// Addresses must be non-empty and unique.
func NewRegistry(entries ...Entry) (*Registry, error) {
	seen := make(map[string]int, len(entries))
	r := &Registry{entries: make([]Entry, 0, len(entries))}

	for i, e := range entries {
		if e.Address == "" {
			return nil, fmt.Errorf("%w: entry %d has no address", ErrInvalidEntry, i)
		}
		if first, dup := seen[e.Address]; dup {
			return nil, fmt.Errorf("%w: %s (entries %d and %d)", ErrDuplicateAddress, e.Address, first, i)
		}
		seen[e.Address] = i
		r.entries = append(r.entries, e.clone())
	}

	return r, nil
}

// FromConfig builds a registry from the devices section of the config.
// Addresses without a port get the default device port; unrecognised
// kinds become KindUnknown.
func FromConfig(devices []config.DeviceConfig) (*Registry, error) {
	entries := make([]Entry, 0, len(devices))
	for _, d := range devices {
		entries = append(entries, Entry{
			Address:  config.NormaliseAddress(d.Address),
			Feed:     d.Feed,
			Tags:     d.Tags,
			Channels: d.Channels,
			Kind:     ParseKind(d.Kind),
		})
	}
	return NewRegistry(entries...)
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entry returns a copy of the entry at index i.
func (r *Registry) Entry(i int) Entry {
	return r.entries[i].clone()
}

// Entries returns copies of all entries in registry order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.clone()
	}
	return out
}
