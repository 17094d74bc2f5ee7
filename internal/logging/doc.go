// Package logging builds the slog loggers used by lightboxd and the lightbox
// CLI.
//
// The daemon writes console lines for humans and JSON for its log files.
// Warnings go through WarnWithContext so every one names an event type, what
// the operator should check and what the user loses (usually a review that
// shows fewer or staler items). WithContext tags records with the review
// session, media item and request ids stored on a context.
package logging
