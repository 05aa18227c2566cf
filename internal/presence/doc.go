// Package presence implements active reachability detection for the
// device fleet.
//
// Devices can go silent without a clean disconnect (power loss, WiFi
// drop, crashed firmware), so passive traffic alone cannot detect
// departures. On a fixed interval the poller broadcasts a who-is-online
// query, collects responses for an adaptive timeout that scales with
// fleet size, and marks non-responders offline in one batch write.
//
// Failure protection:
//   - A circuit breaker opens after a configured number of consecutive
//     failed cycles and skips further cycles until an exponentially
//     growing backoff window elapses. One successful cycle resets it.
//   - Cycles abort immediately (counting as a failure) while the broker
//     connection is down.
//
// Response correlation is owned by a single collector claimed per cycle;
// responses arriving after a cycle's timeout are dropped rather than
// bleeding into the next cycle.
//
// Usage:
//
//	poller := presence.NewPoller(cfg.Presence, cfg.Server.ID, qos,
//	    deviceRepo, mqttClient, logger, metrics)
//	go poller.Run(ctx)
//
//	// Inbound presence/response message:
//	poller.HandleResponse(deviceID)
//
//	// On-demand query for the ops surface:
//	online, err := poller.QueryPresence(ctx, 5*time.Second)
package presence
