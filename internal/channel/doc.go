// Package channel manages the websocket connection to the gateway:
// connect, read, reconnect with jittered exponential backoff.
package channel
