// Package mqtt provides MQTT connectivity for kasametrics.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A retained status topic announcing online/offline, with a Last Will
//     so an unexpected exit is visible to subscribers
//   - LogSink, a logging.RemoteSink publishing forwarded warnings and
//     errors as JSON
//
// # Topics
//
//	<prefix>/status          retained {"status":"online"|"offline",...}
//	<prefix>/log/<level>     one JSON message per forwarded record
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	sink := mqtt.NewLogSink(client, client.Topics(), byte(cfg.MQTT.QoS))
//	fwd := logging.NewForwarder(sink, logging.ForwarderOptions{Level: slog.LevelWarn})
//
// Forwarding is optional; if disabled only local logging occurs.
package mqtt
