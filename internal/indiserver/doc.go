// Package indiserver supervises a local indiserver process.
//
// When the bridge runs on the same host as the instrument drivers it can
// own the server's lifecycle instead of relying on a system service:
//
//	sup, err := indiserver.New(indiserver.FromConfig(cfg.INDI.ServerProcess))
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
//
// Features:
//   - indiserver runs in its own process group so Stop reaches the drivers
//     it forks (SIGTERM, then SIGKILL after a grace period)
//   - failed processes restart with exponential backoff, bounded by
//     MaxRestarts; a run longer than StableThreshold resets the count
//   - readiness and the periodic health check dial the listening port
//   - stdout and stderr are logged line by line
package indiserver
