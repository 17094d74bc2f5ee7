// Package review runs review sessions on top of the aggregation pipeline.
//
// A session consumes its pipeline sequence on a background goroutine and
// keeps only the latest snapshot, so a slow client never holds the producer
// back. Reads always pass through the process-wide deletion tracker, which
// hides items deleted after their snapshot was produced.
package review
