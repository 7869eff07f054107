// Package entrystore implements the persisted, capacity-bounded FIFO of
// buffered entries.
//
// The whole sequence is one JSON array under a single storage key, so each
// mutation is a read-modify-write of that value:
//
//	Append       read, append, trim oldest beyond capacity, write
//	RemoveByIDs  read, drop matching ids, write
//	Clear        remove key
//
// All of them, and ReadAll, run under the store's mutex (the entries lock).
// The upload path never holds this lock across the network call; it takes a
// snapshot with ReadAll and later removes exactly the snapshot's ids, so
// entries appended in between survive.
package entrystore
