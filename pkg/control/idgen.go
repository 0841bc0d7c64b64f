package control

import "sync/atomic"

// IDGenerator hands out strictly increasing command IDs. The zero value
// is ready to use; the first ID is 1, so 0 always means "not yet
// dispatched".
//
// Controllers share the process-wide default generator unless one is
// injected with WithIDGenerator, which lets tests isolate ID sequences.
type IDGenerator struct {
	last atomic.Uint32
}

// Next returns the next command ID. Safe for concurrent use; IDs are
// never reused for the lifetime of the generator.
func (g *IDGenerator) Next() uint32 {
	return g.last.Add(1)
}

var defaultIDGenerator IDGenerator

// GenerateCommandID returns the next ID from the process-wide generator
// shared by all controllers that did not inject their own.
func GenerateCommandID() uint32 {
	return defaultIDGenerator.Next()
}
