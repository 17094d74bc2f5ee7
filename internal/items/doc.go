// Package items defines what a review screen displays: the capture action
// entry and media entries, the immutable ordered snapshots the pipeline emits,
// and the identity and content rules a client uses to diff successive
// snapshots.
package items
