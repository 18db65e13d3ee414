// Package server is the cohort gateway: websocket sessions, per-conversation
// fan-out, streamed agent replies, and the reactions/history REST boundary.
package server
