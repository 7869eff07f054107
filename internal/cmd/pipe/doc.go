// Package piperun implements `nibbana pipe`: it buffers the lines of a
// stream as log entries and uploads them until the stream ends.
package piperun
