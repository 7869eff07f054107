// Package upload implements the upload coordinator.
//
// # Protocol
//
// Trigger holds the upload lock for the whole cycle:
//
//  1. snapshot the buffered entries (ReadAll)
//  2. attach shared context to a copy of the batch
//  3. call the upload function
//  4. on success remove exactly the snapshot's ids; on failure remove nothing
//
// Appends never take the upload lock, so entries can be buffered while an
// upload is in flight. Step 4 therefore never re-reads and clears: anything
// appended after the snapshot survives and goes out with the next upload.
//
// # Delivery
//
// Delivery is at-least-once. If removal fails after a successful upload the
// same ids are sent again next time, and the collector upserts on _id.
//
// The coordinator sets no timeout on the upload function. A hung upload holds
// the lock and starves later triggers, so upload functions must bound their
// own requests; the managed HTTP uploader in httpupload does.
package upload
