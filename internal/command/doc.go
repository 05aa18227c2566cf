// Package command delivers server-to-device commands with an offline
// queue.
//
// Commands are one-shot actions (go, wait, restart, send_now), published
// without the retain flag so a device never replays a stale instruction
// on reconnect. When a target device is offline the command is stored in
// SQLite with a bounded retention; the next time the device reports
// presence, the backlog is delivered in enqueue order with a small
// inter-command delay and the queue is cleared.
//
// Usage:
//
//	store := command.NewSQLiteStore(db.DB, cfg.CommandRetention())
//	disp := command.NewDispatcher(cfg.Commands, store, deviceRepo,
//	    mqttClient, logger, metrics)
//
//	_ = disp.Send(ctx, deviceID, device.CommandRestart, nil)
//
//	// Device answered a presence query:
//	_ = disp.Drain(ctx, deviceID)
package command
