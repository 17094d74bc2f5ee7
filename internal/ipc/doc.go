// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and conversions
// between snapshots or media records and their wire representations. Review
// snapshots are fetched by long polling: NextSnapshot blocks on the daemon
// until a newer update exists or the wait window closes.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
