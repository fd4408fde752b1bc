// Package config handles loading and validating kasametrics configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and device entries
//   - Default value handling
//
// Configuration is loaded once at startup. Any validation failure is fatal;
// the collector never re-reads configuration while running.
//
// Security Considerations:
//   - Tokens and passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(cfg.Devices))
package config
