// Package gateway implements the call-gateway HTTP server.
//
// # Overview
//
// The gateway exposes two client surfaces over one turn pipeline:
//
//   - REST: POST /api/chat for one-shot turns, plus session listing,
//     inspection, and deletion under /api/sessions
//   - Websocket: GET /ws/call upgrades into a duplex conversation channel
//     that accepts text and audio units
//
// Both surfaces share the same turn processor, so transcripts look identical
// regardless of how the client connected.
//
// # Endpoints
//
//	GET  /health              liveness
//	GET  /health/ready        store reachability
//	POST /api/chat            process one turn
//	GET  /api/sessions        list session summaries
//	GET  /api/sessions/{id}   fetch a session with its transcript
//	DELETE /api/sessions/{id} remove a session
//	POST /api/consent         issue a channel token
//	POST /api/intent          detect intent via the NLU provider
//	GET  /ws/call             open a conversation channel
//
// # Authentication
//
// When auth.jwt_secret is configured, /ws/call requires a token issued by
// POST /api/consent, passed as the token query parameter. Without a secret,
// the websocket is open and /api/consent returns 503.
//
// # Lifecycle
//
// Run blocks until the context is canceled, then shuts the HTTP server down
// gracefully. Websocket channels close their sessions as connections drop.
package gateway
