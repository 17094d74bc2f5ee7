// Package deletions records media the user deleted during a review so that
// snapshots produced before the store caught up never show them again.
//
// The set only grows and lives as long as the process. The daemon shares one
// Tracker across every review session and filters each snapshot on read.
package deletions
