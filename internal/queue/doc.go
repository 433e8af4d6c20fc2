// Package queue holds commands that could not be transmitted yet.
//
// Ring is a fixed-capacity circular buffer that overwrites its oldest item
// when full. Outbound builds the client's offline command queue on top of it:
// the newest command is always accepted, and the evicted oldest command is
// rejected through its own callback with ErrOverflow.
package queue
