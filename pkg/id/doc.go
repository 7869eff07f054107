// Package id provides the 128-bit, lexicographically sortable identifier
// assigned to every buffered entry.
//
// # Format
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][4 bytes node][4 bytes
// sequence]. Byte-wise comparison preserves chronological order for a single
// generator, and IDs generated within the same millisecond remain strictly
// increasing by sequence. The node component is drawn at random per
// generator so IDs minted on different devices stay distinct.
//
// # Monotonicity
//
// The Generator ensures per-process monotonicity:
//   - If the system clock regresses, it pins to the last seen millisecond and
//     increments the sequence to avoid going backwards.
//   - If the sequence would overflow within a millisecond, it waits for the
//     next millisecond before emitting the next ID.
//
// Usage
//
//	g := id.NewGenerator()
//	newID := g.Next()
//	s := newID.String()  // 32 hex chars, stored as the entry's _id
package id
