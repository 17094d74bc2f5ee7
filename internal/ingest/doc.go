// Package ingest registers files a capture tool writes into the capture
// directory with the media store.
//
// A capture tool writes each file under a temporary name carrying the pending
// prefix and renames it once the write is complete. The pending name creates a
// pending record; the rename promotes the same record to ready under its final
// path. Files that appear directly under a final name are registered ready.
// Each immediate subdirectory is one capture group.
package ingest
