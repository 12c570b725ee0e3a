// Package events delivers security events to a sink off the request path.
//
// The dispatcher owns one goroutine and a bounded buffer. With DropIfFull
// set, Emit never blocks for ordinary events and counts what it discards;
// critical types still wait for space. Discards are reported to the sink
// as TypeDropped summaries, so a consumer of the stream can tell that it
// has gaps.
package events
