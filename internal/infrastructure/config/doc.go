// Package config loads and validates the arbiter configuration.
//
// Loading happens in three layers:
//   - Built-in defaults
//   - The YAML file named on the command line
//   - GRAYLOGIC_* environment variables (processed with envconfig)
//
// Environment names follow the field path, upper-cased and joined with
// underscores: database.path is GRAYLOGIC_DATABASE_PATH,
// security.jwt.secret is GRAYLOGIC_SECURITY_JWT_SECRET, and
// arbitration.default_ttl is GRAYLOGIC_ARBITRATION_DEFAULT_TTL.
//
// Security Considerations:
//   - Secrets (JWT key, broker password, InfluxDB token) belong in the
//     environment, not in the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Dispatch.DefaultTimeout)
package config
