// Package daemon coordinates the long-running lightbox process.
//
// It wires configuration, the media store, the review service, the store
// change poller, the capture directory ingester, and the capture device
// monitor into a single lifecycle with flock-based locking to prevent multiple
// instances. The deletion tracker and the review session registry live here
// for the lifetime of the process and are shared by every client.
//
// Keep orchestration logic here: aggregation belongs to the pipeline and
// review packages while the daemon focuses on startup, shutdown, and the
// operations exposed over IPC.
package daemon
