// Package auth provides login and request authentication for coven-dashboard.
//
// The dashboard has a single account. Its username and bcrypt password hash
// live in the user_settings table. Authenticator.Login checks them and
// returns an HS256 JWT whose "sub" claim is the username, valid for 24 hours
// by default.
//
// HTTPAuthMiddleware guards the API. It accepts "Authorization: Bearer
// <token>" and, for browser WebSocket upgrades that cannot set headers, a
// ?token= query parameter. The verified identity is available to handlers
// through FromContext.
package auth
