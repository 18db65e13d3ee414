// Package streaming assembles token-streamed agent replies into messages.
// Chunks carry cumulative content; anything addressed to a non-active
// stream id is ignored as an expected race.
package streaming
