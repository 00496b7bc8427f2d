// Package stream forwards a subprocess's output to a sink while it runs.
//
// Standard output and standard error are drained concurrently, line by line.
// Lines are batched per stream and flushed either on every line (interval 0)
// or whenever the flush interval has elapsed, and once more at end of stream.
package stream
