// Package runtime wires the Pebble store, metrics and a configured nibbana
// client for one data directory. The CLI opens one Runtime per invocation.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	_ = rt.Client().Log(ctx, "hello")
package runtime
