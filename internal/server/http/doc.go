// Package httpserver exposes a running client over local HTTP.
//
//	GET  /metrics          Prometheus metrics
//	GET  /v1/healthz       store health
//	GET  /v1/entries       buffered entries; ?where=<CEL> narrows them
//	POST /v1/entries       record {"kind","data"} or {"kind":"event","name","payload","durationMs"}
//	POST /v1/flush         upload now
//
// Example:
//
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, "127.0.0.1:9464")
package httpserver
