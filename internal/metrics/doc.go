// Package metrics instruments the buffer, the upload coordinator and the
// Pebble store with Prometheus collectors.
package metrics
