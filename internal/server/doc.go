// Package server is the composition root of coven-dashboard.
//
// # Overview
//
// Server owns every long-lived component and passes them to each other by
// reference:
//
//	type Server struct {
//	    store     store.Store
//	    gateway   *gateway.Client      // one connection per process
//	    hub       *conversation.Hub    // connected web clients
//	    router    *conversation.Router // chat flow
//	    briefing  *briefing.Aggregator
//	    auth      *auth.Authenticator
//	    metrics   *metrics.Collectors  // nil when disabled
//	    // ...
//	}
//
// # HTTP API
//
// Public endpoints:
//
//   - GET /health - Liveness and gateway state
//   - POST /api/auth/login - Exchange username and password for a token
//   - POST /api/auth/verify - Check a token
//
// Everything else under /api requires "Authorization: Bearer <token>":
// briefing, sessions, memory search, chat history/search/clear/export,
// activity, calendar and system status.
//
// # Live Channel
//
// GET /ws?token=... upgrades to a WebSocket carrying JSON frames:
//
//	{"event": "chat:message", "data": {"message": "hello"}}
//
// Inbound frames go to the Router; outbound events come from the Hub. A
// write pump per connection is the only writer and pings every 54s.
//
// # Background Work
//
// Run starts two loops alongside the HTTP server: a session poller that
// broadcasts sessions:status, and a forwarder that relays unsolicited
// gateway events as gateway:event.
//
// # Lifecycle
//
//	srv, err := server.New(cfg, logger)
//	err = srv.Run(ctx) // blocks until ctx is canceled, then shuts down
//
// # Listeners
//
// With tailscale.enabled the server joins the tailnet through tsnet and
// listens on :80, or :443 with Tailscale certificates or Funnel. Otherwise
// it listens on server.http_addr.
package server
