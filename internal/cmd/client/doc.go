// Package client provides the `nibbana` command-line client.
//
// Every command opens the data directory, does one thing and closes it
// again, so commands can be chained from shell scripts. Settings come from
// defaults, then --config (JSON or YAML), then NIBBANA_* environment
// variables, then flags.
//
// Usage
//
//	nibbana log "deploy started" --kind warn
//	nibbana event checkout_completed --payload '{"total":42}' --duration 1.2s
//	nibbana identify user-123
//
//	nibbana pending
//	nibbana pending --where 'kind == "error" && now_ms - ts_ms < 3600000'
//
//	nibbana props set plan=pro seats=5
//	nibbana props show
//
//	NIBBANA_ENDPOINT=https://collect.example.com/entries \
//	NIBBANA_SECRET_TOKEN=... nibbana flush
//
//	# Buffer a service's output and upload every minute
//	myservice 2>&1 | nibbana pipe --interval 1m --metrics-addr :9464
//
// Notes
//
//   - flush keeps every entry buffered when the collector rejects a batch.
//   - clear drops entries without uploading them and requires --confirm.
//   - pipe uploads once more when its input ends or on SIGINT/SIGTERM.
package client
