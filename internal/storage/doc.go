// Package storage is the durable persistence collaborator. The core only
// relies on two operations: append a message and read a conversation.
package storage
