// Package storage defines the key/value Adapter the buffer persists through
// and an in-memory implementation.
//
// Two keys are used: one holds the JSON array of buffered entries, the other
// the JSON object of persistent super properties. Every read-modify-write on
// a key is serialized by the component that owns the key; adapters only
// need single-call atomicity.
//
// The durable implementation lives in storage/pebble.
package storage
