// Package capture runs the recording lifecycle: it drains an encoded
// audio source on a fixed cadence, numbers the resulting segments, and
// hands them to a delivery sink. A recording stops on request or when
// the safety timer fires, and stopping always flushes the tail segment
// and requests the server-side merge exactly once.
package capture
