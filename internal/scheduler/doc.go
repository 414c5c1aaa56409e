// Package scheduler turns a transport's tempo, meter and loop into a
// precisely timed stream of tick events.
//
// A Scheduler is a single goroutine that owns the transport state. It wakes
// every poll interval and emits every tick whose due time falls inside the
// lookahead window, so consumers get their ticks ahead of time and a late
// wake-up only delays delivery, never drops or reorders ticks. Commands are
// serialized through the same goroutine; the published snapshot can be read
// without locking.
package scheduler
