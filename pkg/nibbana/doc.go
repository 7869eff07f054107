// Package nibbana is a client-side telemetry buffer. Application code records
// log lines and events; the client persists them in a capacity-bounded queue
// and uploads them in batches, on demand or on a timer, keeping everything
// buffered until the collector has accepted it.
//
//	c := nibbana.New()
//	err := c.Configure(ctx, nibbana.Options{
//	    Endpoint:    "https://collect.example.com/entries",
//	    SecretToken: token,
//	    Capacity:    1000,
//	    Storage:     store,
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	c.StartAutomaticUploads(time.Minute)
//	c.Event(ctx, "checkout_completed", map[string]any{"total": 42})
//
// # Delivery
//
// An upload removes exactly the entries it sent, so entries recorded while an
// upload is in flight go out with the next one. Delivery is at-least-once: if
// removal fails after the collector accepted a batch, the batch is sent again
// and the collector deduplicates on the entry id.
//
// Only one upload runs at a time. An upload function that never returns
// blocks every later upload, so custom upload functions must apply their own
// timeout.
//
// # Super properties
//
// Super properties are attached to every new entry. Transient ones live as
// long as the Client; persistent ones are written to Storage and loaded again
// by Configure. A key is never both: setting it in one set removes it from
// the other.
package nibbana
