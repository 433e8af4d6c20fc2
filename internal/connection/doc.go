// Package connection implements the game client's connection core.
//
// The Core:
//   - Dials the game server over a websocket (Client)
//   - Runs the connect/authenticate state machine
//   - Queues commands while not ready and flushes them on ready
//   - Detects dead sessions with an application-level Heartbeat
//   - Reconnects with exponential backoff (Scheduler)
//   - Publishes typed events on a Bus
//
// States:
//
//	idle -> connecting -> connected -> authenticating -> ready
//	                 \                              /
//	                  +---- reconnecting <---------+
//	any -> closed (Disconnect, auth failure, exhausted retries)
package connection
