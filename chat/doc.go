// Package chat holds the conversation-side concurrency pieces of the
// overlay: the outbound message queue that buffers user submissions until
// the secure channel is ready, the typing presenter that reveals server
// replies one character at a time, and the >find command parser.
package chat
