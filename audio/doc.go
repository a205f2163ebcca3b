// Package audio decodes captured Opus frames and measures signal levels.
//
// The capture pipeline ships encoded segments to the server without
// touching the samples; this package exists for the local monitoring
// path: decoding frames back to PCM and metering them so a frontend can
// render a live input-level indicator while a recording runs.
package audio
