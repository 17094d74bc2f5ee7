// Package pipeline turns a capture trigger into a sequence of progressively
// refined snapshots.
//
// A sequence emits in three stages. The first snapshot holds the capture
// action and the anchor alone, before any sibling query runs. The second holds
// the resolved siblings. After that one snapshot is emitted each time a
// pending sibling finishes writing, until every wait has returned. Stopping
// iteration, or cancelling the context passed to Handle, releases every
// outstanding wait before the iterator returns.
package pipeline
