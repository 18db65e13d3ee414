// Package wire defines the closed set of frames exchanged over the
// realtime channel and their JSON envelope codec.
package wire
