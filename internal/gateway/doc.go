// Package gateway is the client side of the agent gateway protocol.
//
// # Overview
//
// A Client holds one long-lived WebSocket to the external gateway that runs
// the assistant. Every request multiplexes over that socket; there is no
// pool.
//
// # Connection States
//
//	disconnected -> connecting -> awaiting-handshake -> ready
//	     ^                                               |
//	     +------------- socket closes or errors ---------+
//
// After the socket opens the gateway pushes a connect.challenge event. The
// client answers with a connect request carrying protocol bounds (3..3),
// client identity and the auth token. A response whose payload type is
// hello-ok moves the client to ready. Only then may application requests
// be sent; in any other state they fail at once with ErrNotConnected.
//
// When the socket closes every pending request is rejected with
// ErrConnectionClosed, then a single reconnect is scheduled after a fixed
// delay (3s by default). Nothing is queued across disconnects.
//
// # Wire Frames
//
//	{"type":"req","id":"sessions.send-…","method":"sessions.send","params":{…}}
//	{"type":"res","id":"sessions.send-…","ok":true,"payload":{…}}
//	{"type":"res","id":"…","ok":false,"error":"…"}
//	{"type":"event","event":"…", …}
//
// # Correlation
//
// Each request gets a unique id and an entry in the pending table holding
// the waiting caller and its deadline timer. The first of reply, timeout,
// connection close or caller cancellation to remove the entry completes the
// request; later arrivals for the same id are logged and dropped.
//
// # Failure Policy
//
// ListSessions, GetSessionLogs and SearchMemory back polling views and
// return empty results on any failure. SendMessage, SpawnSession,
// KillSession, SendToSession and GetSessionDetails return errors;
// UserMessage renders them for the chat UI.
package gateway
