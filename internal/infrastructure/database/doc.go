// Package database provides SQLite connectivity for AquaSentinel Core.
//
// This package manages:
//   - Opening the database with WAL mode and busy timeout pragmas
//   - Schema migrations embedded into the binary
//   - Connection health checks
//
// SQLite is used for the device registry, alert store, and pending command
// queue. Sensor readings go to InfluxDB (see the influxdb package); SQLite
// holds only the relational, low-churn state.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/aquasentinel.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
