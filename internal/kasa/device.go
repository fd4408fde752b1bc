package kasa

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/kasametrics/internal/device"
)

var (
	sysinfoRequest  = map[string]any{"system": map[string]any{"get_sysinfo": struct{}{}}}
	realtimeRequest = map[string]any{"emeter": map[string]any{"get_realtime": struct{}{}}}
)

// childRealtimeRequest addresses the realtime command to one outlet.
func childRealtimeRequest(childID string) map[string]any {
	return map[string]any{
		"context": map[string]any{"child_ids": []string{childID}},
		"emeter":  map[string]any{"get_realtime": struct{}{}},
	}
}

// status is the err_code/err_msg pair carried by every command reply.
type status struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

func (s status) err(command string) error {
	if s.ErrCode == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: code %d: %s", ErrDeviceError, command, s.ErrCode, s.ErrMsg)
}

type sysinfoReply struct {
	System struct {
		GetSysinfo *sysinfo `json:"get_sysinfo"`
	} `json:"system"`
}

type sysinfo struct {
	status
	DeviceID   string      `json:"deviceId"`
	Alias      string      `json:"alias"`
	Model      string      `json:"model"`
	RelayState int         `json:"relay_state"`
	RSSI       *int        `json:"rssi"`
	Feature    string      `json:"feature"`
	Children   []childInfo `json:"children"`
}

type childInfo struct {
	ID    string `json:"id"`
	State int    `json:"state"`
	Alias string `json:"alias"`
}

// hasEmeter reports whether the feature list advertises an energy meter.
func (s *sysinfo) hasEmeter() bool {
	for _, f := range strings.Split(s.Feature, ":") {
		if f == "ENE" {
			return true
		}
	}
	return false
}

// childID returns the id to address outlet c with. Some strips list only a
// two-digit suffix, which is appended to the parent's device id.
func (s *sysinfo) childID(c childInfo) string {
	if len(c.ID) <= 2 && s.DeviceID != "" {
		return s.DeviceID + c.ID
	}
	return c.ID
}

type realtimeReply struct {
	Emeter struct {
		GetRealtime *realtime `json:"get_realtime"`
	} `json:"emeter"`
}

// realtime accepts both firmware generations.
type realtime struct {
	status

	VoltageMV *float64 `json:"voltage_mv"`
	CurrentMA *float64 `json:"current_ma"`
	PowerMW   *float64 `json:"power_mw"`
	TotalWh   *float64 `json:"total_wh"`

	Voltage *float64 `json:"voltage"`
	Current *float64 `json:"current"`
	Power   *float64 `json:"power"`
	Total   *float64 `json:"total"`
}

// meter normalises the reading to milli-units and Wh.
func (r *realtime) meter() device.Meter {
	pick := func(milli, base *float64) float64 {
		switch {
		case milli != nil:
			return *milli
		case base != nil:
			return *base * 1000
		default:
			return 0
		}
	}
	return device.Meter{
		VoltageMV: pick(r.VoltageMV, r.Voltage),
		CurrentMA: pick(r.CurrentMA, r.Current),
		PowerMW:   pick(r.PowerMW, r.Power),
		TotalWh:   pick(r.TotalWh, r.Total),
	}
}

// Device is a device.Handle for one configured plug or strip.
type Device struct {
	entry  device.Entry
	client *Client
}

// NewHandle is a device.HandleFactory creating Kasa handles.
func NewHandle(entry device.Entry) (device.Handle, error) {
	return &Device{entry: entry, client: NewClient(entry.Address)}, nil
}

// Query reads sysinfo and, when the device has a meter, realtime readings.
// Strip outlets without a configured channel name are not metered.
func (d *Device) Query(ctx context.Context) (device.Snapshot, error) {
	info, err := d.sysinfo(ctx)
	if err != nil {
		return device.Snapshot{}, err
	}

	snap := device.Snapshot{
		Reading: device.Reading{On: info.RelayState == 1, RSSI: info.RSSI},
	}
	metered := info.hasEmeter()

	if d.entry.Kind != device.KindStrip {
		if metered {
			m, err := d.realtime(ctx, realtimeRequest)
			if err != nil {
				return device.Snapshot{}, err
			}
			snap.Meter = &m
		}
		return snap, nil
	}

	if len(info.Children) == 0 {
		return device.Snapshot{}, fmt.Errorf("%w: strip reported no outlets", ErrInvalidResponse)
	}

	snap.Children = make([]device.Reading, len(info.Children))
	for i, c := range info.Children {
		r := device.Reading{On: c.State == 1}
		if metered && d.entry.ChannelName(i) != "" {
			m, err := d.realtime(ctx, childRealtimeRequest(info.childID(c)))
			if err != nil {
				return device.Snapshot{}, fmt.Errorf("outlet %d: %w", i, err)
			}
			r.Meter = &m
		}
		snap.Children[i] = r
		snap.On = snap.On || r.On
	}
	return snap, nil
}

func (d *Device) sysinfo(ctx context.Context) (*sysinfo, error) {
	var reply sysinfoReply
	if err := d.client.Call(ctx, sysinfoRequest, &reply); err != nil {
		return nil, fmt.Errorf("get_sysinfo: %w", err)
	}
	info := reply.System.GetSysinfo
	if info == nil {
		return nil, fmt.Errorf("%w: get_sysinfo missing", ErrInvalidResponse)
	}
	if err := info.err("get_sysinfo"); err != nil {
		return nil, err
	}
	return info, nil
}

func (d *Device) realtime(ctx context.Context, request any) (device.Meter, error) {
	var reply realtimeReply
	if err := d.client.Call(ctx, request, &reply); err != nil {
		return device.Meter{}, fmt.Errorf("get_realtime: %w", err)
	}
	rt := reply.Emeter.GetRealtime
	if rt == nil {
		return device.Meter{}, fmt.Errorf("%w: get_realtime missing", ErrInvalidResponse)
	}
	if err := rt.err("get_realtime"); err != nil {
		return device.Meter{}, err
	}
	return rt.meter(), nil
}
