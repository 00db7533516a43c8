// Package logging provides structured logging for the my-PV bridge.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used across the poller, the command path and the host adapters.
//
// # Log Levels
//
//   - Debug: every device request and completed poll cycle
//   - Info: commands issued, server and broker lifecycle
//   - Warn: failed device requests and failed cycles
//   - Error: startup failures
//
// # Configuration
//
// Logging is silent unless a level is given, either on the command line or
// through MYPV_LOG_LEVEL:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Components accept a *zap.Logger and fall back to GetLogger(), so tests can
// inject zaptest or observer loggers without touching the global.
//
// # Domain Helpers
//
//	logging.LogDeviceRequest(l, host, "/data.jsn", 200, elapsed, nil)
//	logging.LogCycle(l, host, cycle, "success", false, elapsed, nil)
//	logging.LogCommand(l, host, "boost", true, err)
package logging
