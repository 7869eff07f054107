// Package filter compiles CEL expressions into entry predicates.
//
// The client uses a filter to decide which entries are captured at all, and
// the CLI uses one to select buffered entries for display:
//
//	kind == "event" && name.startsWith("checkout")
//	kind == "error" && payload[0].message.contains("timeout")
//	superProperties.plan == "pro" && now_ms - ts_ms < 60000
package filter
