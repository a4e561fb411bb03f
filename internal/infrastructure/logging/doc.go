// Package logging provides structured logging for the INDI bridge.
//
// It wraps log/slog so every component logs with the same default
// fields (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	bridgeLog := logger.Component("bridge")
//	bridgeLog.Info("published state", "device", dev, "property", prop)
//
// Never log MQTT passwords or InfluxDB tokens. BLOB payloads are logged
// by size only.
package logging
