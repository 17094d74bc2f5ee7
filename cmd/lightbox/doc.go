// Command lightbox is the command-line client for the Lightbox review daemon.
//
// Review, delete and resume requests go to the daemon over its unix socket.
// When no daemon is running, review and purge fall back to working on the
// media store directly, and the media subcommands always write to the store
// so the daemon picks the changes up through its change poller.
package main
