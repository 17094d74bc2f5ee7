// Package mediastore persists captured media records in SQLite and notifies
// subscribers when a record changes.
//
// A record carries the store-assigned id, the capture group key (bucket), the
// content type, and the pending flag a capture process clears once the write
// is complete. Records are addressed by Locator values whose collection is
// derived from the content type; a locator in the wrong collection does not
// resolve.
//
// Change notification is scoped to one record: Subscribe registers a callback
// for a locator and returns a Subscription that must be released. Callbacks
// run serially on the hub's delivery goroutine. Writes made through a Store
// notify immediately; writes made by other processes are picked up by the
// Poller.
package mediastore
