// Package api is the REST client for the game-server directory service.
//
// Endpoints:
//   - GET    /servers          list registered servers (optional ?region=)
//   - GET    /servers/{id}     fetch one server
//   - POST   /servers          register a server
//   - DELETE /servers/{id}     remove a server
//
// Requests carry a bearer token when one is configured and are retried with
// jittered exponential backoff on 5xx and 429 responses.
package api
