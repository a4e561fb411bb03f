// Package config loads and validates the INDI bridge configuration.
//
// Configuration comes from three layers, later ones winning:
//   - built-in defaults
//   - a YAML file
//   - INDIBRIDGE_* environment variables
//
// Credentials (MQTT password, InfluxDB token) should be supplied through
// the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.INDI.Server)
package config
