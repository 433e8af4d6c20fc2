// Package directory tracks the game servers a client may connect to and
// picks one for the connection core.
//
// Endpoints live in a Store (in memory, PostgreSQL table game_servers, or a
// remote directory service over REST). A Service probes endpoints with a
// websocket handshake and ranks them by latency, breaking near ties by
// priority. Service.Resolve satisfies connection.Directory.
//
// Two optional background feeders keep the picture fresh:
//   - Refresher re-ranks on an interval so Resolve can answer from cache
//   - LANBrowser upserts servers advertised over mDNS (_gamelink._tcp)
package directory
