// Package tsdb writes measurements to VictoriaMetrics.
//
// VictoriaMetrics accepts InfluxDB line protocol on POST /write, so this
// package reuses the point type and encoder of the InfluxDB client library
// and sends each batch as a single plain-text request.
//
// # Usage
//
//	client, err := tsdb.Connect(ctx, cfg.TSDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.WritePoints(ctx, points...)
//
// # Error Handling
//
// Connection and write errors are returned directly and wrap the sentinels
// in errors.go. A rejected batch carries the HTTP status and the start of
// the response body.
package tsdb
