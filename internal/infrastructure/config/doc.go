// Package config loads and validates fanlink configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by FANLINK_* environment variables. Validation
// runs once at load time so the rest of the application can trust the
// values it receives.
//
// Example:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Serial.Device)
package config
