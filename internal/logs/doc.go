// Package logs reads and follows the daemon log for `lightbox logs`.
//
// The daemon writes one log file per run and points lightboxd.log at the
// current one. Follow resolves that pointer, streams appended lines as they
// are written and switches to the new file when the daemon restarts.
package logs
