// Package sinks forwards blast progress outside the process: as events on a
// message broker (QueueSink) or mirrored into a key-value store (KVSink).
package sinks
