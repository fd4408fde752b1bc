// Package kasa talks to TP-Link Kasa smart plugs and power strips over the
// local "smart home" protocol.
//
// # Wire format
//
// Every request is one TCP connection to port 9999 carrying a single frame
// each way:
//
//	Byte 0-3: payload length (big-endian)
//	Byte 4+:  JSON payload, XOR autokey cipher with initial key 171
//
// Two commands are used:
//
//	{"system":{"get_sysinfo":{}}}
//	{"emeter":{"get_realtime":{}}}
//
// Outlets of a strip are addressed by prefixing the command with
// {"context":{"child_ids":["<id>"]}}.
//
// Older firmware reports realtime readings in volts, amps, watts and kWh;
// newer firmware in millivolts, milliamps, milliwatts and Wh. Both are
// normalised to the latter.
//
// # Usage
//
//	poller, err := device.NewPoller(registry, kasa.NewHandle, 5*time.Second)
package kasa
