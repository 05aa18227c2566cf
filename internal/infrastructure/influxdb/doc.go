// Package influxdb persists sensor readings to InfluxDB v2.
//
// Readings are immutable time-series data and a poor fit for SQLite's
// single-writer model at fleet scale, so they are written here while the
// relational state (devices, alerts, pending commands) stays in SQLite.
//
// Writes are batched and non-blocking: WriteReading never stalls an
// ingestion worker. Asynchronous write failures are delivered through the
// SetOnError callback and to the job retry path via the breaker that wraps
// persistence in the ingest package.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
//	    log.Fatal(err)
//	}
//	client.WriteReading("aqs-0042", map[string]float64{"ph": 7.1}, ts, time.Now())
package influxdb
