// Package conversation carries the dashboard chat between web clients and
// the agent gateway.
//
// # Overview
//
// Web clients exchange JSON frames with the dashboard over a WebSocket:
//
//	{"event": "chat:message", "data": {"message": "hello"}}
//
// The Router handles inbound frames and the Hub fans outbound events back
// out to connected clients.
//
// # Router
//
// For each submitted chat message the Router:
//
//  1. Rejects blank input with chat:error to the sender only
//  2. Persists the user message
//  3. Broadcasts chat:typing {typing: true}
//  4. Sends the text to the gateway and waits for the reply
//  5. Broadcasts chat:typing {typing: false}
//  6. Persists and broadcasts the assistant reply as chat:message
//
// When the gateway call fails, step 6 is replaced by a chat:error to the
// sender carrying a user-readable explanation. Typing-stopped always goes
// out first, so no client is left with a stuck indicator.
//
// typing:start and typing:stop from one client are relayed to the others
// as user:typing.
//
// # Hub
//
// The Hub gives each client a buffered queue. Publishing never blocks; a
// client that falls behind misses events rather than stalling everyone.
// Clients may also register interest in a gateway session key and receive
// events published for that session.
//
// # Export
//
// ExportMarkdown and ExportHTML turn stored history into a transcript.
package conversation
