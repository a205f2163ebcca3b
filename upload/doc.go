// Package upload ships recorded audio segments to the server from a
// background worker, keeping capture timing isolated from network
// latency. Segments are delivered strictly in enqueue order, each with
// bounded retry, and the final merge request runs only after every
// segment ahead of it has been attempted.
package upload
