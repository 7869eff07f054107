// Package entry defines the telemetry entry buffered on the client and sent
// to the collector.
//
// Entries are stored as one JSON array under a single storage key. The id is
// serialized as "_id" because the collector upserts on it, which is what makes
// re-sending an entry after a partially failed upload harmless.
package entry
