package collector

import (
	"fmt"
	"maps"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/kasametrics/internal/device"
)

// DefaultMeasurement is the measurement name of every point.
const DefaultMeasurement = "power"

// FeedTag is the tag carrying the feed name.
const FeedTag = "feed"

// Measurement is one time-series point before encoding.
type Measurement struct {
	Name   string
	Time   time.Time
	Tags   map[string]string
	Fields map[string]any
}

// Point converts the measurement for the sink.
func (m Measurement) Point() *write.Point {
	return write.NewPoint(m.Name, m.Tags, m.Fields, m.Time)
}

// CycleTime truncates t to the millisecond resolution stored with points.
func CycleTime(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// Build turns a successful snapshot into measurements.
//
// A plug yields one measurement tagged with the entry feed. A strip yields
// one per outlet that has a configured channel name, tagged
// "<feed>-<channel>". Outlets reporting no RSSI use the device's.
func Build(name string, entry device.Entry, snap device.Snapshot, ts time.Time) ([]Measurement, error) {
	switch entry.Kind {
	case device.KindPlug:
		return []Measurement{newMeasurement(name, entry, entry.Feed, snap.Reading, snap.RSSI, ts)}, nil

	case device.KindStrip:
		out := make([]Measurement, 0, len(snap.Children))
		for i, child := range snap.Children {
			channel := entry.ChannelName(i)
			if channel == "" {
				continue
			}
			feed := entry.Feed + "-" + channel
			out = append(out, newMeasurement(name, entry, feed, child, snap.RSSI, ts))
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, entry.Kind)
	}
}

func newMeasurement(name string, entry device.Entry, feed string, r device.Reading, parentRSSI *int, ts time.Time) Measurement {
	tags := make(map[string]string, len(entry.Tags)+1)
	maps.Copy(tags, entry.Tags)
	tags[FeedTag] = feed

	state := 0
	if r.On {
		state = 1
	}
	fields := map[string]any{"state": state}

	rssi := r.RSSI
	if rssi == nil {
		rssi = parentRSSI
	}
	if rssi != nil {
		fields["rssi"] = *rssi
	}

	if r.Meter != nil {
		fields["voltage"] = r.Meter.VoltageMV / 1000
		fields["current"] = r.Meter.CurrentMA / 1000
		fields["power"] = r.Meter.PowerMW / 1000
		fields["wh_cumulative"] = r.Meter.TotalWh
	}

	return Measurement{Name: name, Time: ts, Tags: tags, Fields: fields}
}
