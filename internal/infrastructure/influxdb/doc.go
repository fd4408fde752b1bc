// Package influxdb provides InfluxDB connectivity for kasametrics.
//
// It wraps the official influxdb-client-go v2 library and exposes a single
// blocking batch write, so each polling cycle's points land in one request
// that either succeeds or fails as a whole.
//
// Both InfluxDB 2.x (token, org, bucket) and 1.8+ compatibility endpoints
// (username, password, database, retention policy) are supported.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.WritePoints(ctx, points...)
//
// Points are written with millisecond precision.
package influxdb
