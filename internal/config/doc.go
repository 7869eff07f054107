// Package config loads the nibbana CLI configuration. It exposes a Default()
// baseline, file loading and an environment overlay.
//
// Example:
//
//	cfg, err := config.Load("/etc/nibbana.yaml") // defaults when path is ""
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
