// Package readiness answers whether a media item is fully written and lets
// callers wait until it is.
//
// A Probe performs one store lookup and never fails: a missing record or a
// store error reads as "not ready". A Watcher builds on the probe and on the
// store's change notifications to block until the item becomes ready, using
// the subscribe-then-recheck order so a transition between the first probe and
// the subscription is never lost.
package readiness
