package service

import "sync/atomic"

// exitValue tracks the exit code handed back to a forwarded command-line
// invocation. The default is 0; the value is meaningfully mutable only
// between CommandLine dispatch and the receiver sending its reply.
type exitValue struct {
	v atomic.Int32
}

func (e *exitValue) set(v int)  { e.v.Store(int32(v)) }
func (e *exitValue) value() int { return int(e.v.Load()) }
