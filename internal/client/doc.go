// Package client is the conversation synchronization core.
//
// # Overview
//
// A Client owns everything needed to converse with AI colleagues in real
// time: the per-conversation message logs, the streaming assembler, the
// outbound delivery pipeline, and the realtime channel. It runs as an
// actor: a single goroutine consumes typed events, so every mutation is
// serialized and no lock discipline leaks into the component code.
//
// # Wiring
//
//	c := client.New(client.Config{
//		GatewayURL: "ws://gateway:8080/ws",
//		Token:      token,
//		UserID:     "me",
//		Roster:     roster,
//	})
//	go c.Run(ctx)
//
//	conv := c.Select(resolver.Selection{ProjectID: "p1", AgentID: "ada"})
//	msg, err := c.Submit("hello", "")
//
// # Data flow
//
// Reads: Select resolves a conversation, Messages/Threads expose the log
// and its reconstructed thread forest. Writes: Submit appends an
// optimistic message and hands it to the pipeline, which sends it or
// queues it for the reconnect flush. Inbound frames re-enter through
// Deliver and mutate the store or the assembler.
//
// # Delivery semantics
//
// The wire contract is at-least-once. Message ids are minted here and
// echoed verbatim by the gateway, so the store's dedup-by-id suppresses
// both redelivery and the echo of this client's own sends. Arrival order
// is the only order; no global total order is imposed across clients.
package client
