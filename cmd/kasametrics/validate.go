package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/nerrad567/kasametrics/internal/device"
	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
)

// validate loads the configuration and prints the device registry as the
// collector would build it. Nothing is contacted.
func validate(out io.Writer, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry, err := device.FromConfig(cfg.Devices)
	if err != nil {
		return fmt.Errorf("building device registry: %w", err)
	}

	sink := "tsdb " + cfg.TSDB.URL
	if cfg.InfluxDB.Enabled {
		sink = "influxdb " + cfg.InfluxDB.URL
	}
	fmt.Fprintf(out, "config:   %s\n", cfgPath)
	fmt.Fprintf(out, "sink:     %s\n", sink)
	fmt.Fprintf(out, "interval: %s (device timeout %s)\n", cfg.Collector.Interval, cfg.Collector.DeviceTimeout)
	fmt.Fprintf(out, "devices:  %d\n\n", registry.Len())

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tKIND\tFEED\tCHANNELS\tTAGS")
	for _, e := range registry.Entries() {
		feed := e.Feed
		if e.Silenced() {
			feed = "(silenced)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Address, e.Kind, feed, channelList(e), tagList(e.Tags))
	}
	return tw.Flush()
}

// channelList renders strip channels as index=name, skipping unnamed ones.
func channelList(e device.Entry) string {
	if e.Kind != device.KindStrip {
		return "-"
	}
	var parts []string
	for i := range e.Channels {
		if name := e.ChannelName(i); name != "" {
			parts = append(parts, fmt.Sprintf("%d=%s", i, name))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func tagList(tags map[string]string) string {
	if len(tags) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(tags))
	for k, v := range tags {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
