// Package config handles loading and validating the garage controller's configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GARAGEGATE_* environment variables
//   - Validation of required fields and ranges
//   - Default value handling
//
// Security Considerations:
//   - The shared secret authenticates remote door commands. Set it via
//     GARAGEGATE_SHARED_SECRET rather than committing it to the file.
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.AutoClose())
package config
