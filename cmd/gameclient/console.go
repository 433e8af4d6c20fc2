package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/gamelink/internal/connection"
	"github.com/rickgao/gamelink/internal/protocol"
)

var errUsage = errors.New("usage")

// console executes one line of user input against the core.
type console struct {
	core *connection.Core
	out  io.Writer
}

// exec runs line and reports whether the user asked to quit.
func (c *console) exec(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	verb := strings.ToLower(parts[0])
	args := parts[1:]

	switch verb {
	case "help", "?":
		c.printHelp()
	case "connect", "c":
		c.cmdConnect()
	case "disconnect", "dc":
		c.core.Disconnect()
		fmt.Fprintln(c.out, "disconnected")
	case "login":
		c.cmdLogin(args)
	case "status", "s":
		c.cmdStatus()
	case "metrics", "m":
		c.cmdMetrics()
	case "quit", "exit", "q":
		return true
	default:
		cmd, err := parseCommand(verb, args)
		if errors.Is(err, errUsage) {
			fmt.Fprintf(c.out, "%v\n", err)
			return false
		}
		if err != nil {
			fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", verb)
			return false
		}
		c.send(cmd)
	}
	return false
}

// parseCommand maps a console verb onto a game command.
func parseCommand(verb string, args []string) (protocol.Command, error) {
	switch verb {
	case "move":
		dx, dy, err := twoInts(args)
		if err != nil {
			return nil, fmt.Errorf("%w: move <dx> <dy>", errUsage)
		}
		return protocol.MoveBy{DX: dx, DY: dy}, nil
	case "goto":
		x, y, err := twoInts(args)
		if err != nil {
			return nil, fmt.Errorf("%w: goto <x> <y>", errUsage)
		}
		return protocol.MoveTo{X: x, Y: y}, nil
	case "act":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: act <target> <action>", errUsage)
		}
		return protocol.Act{TargetID: args[0], Action: args[1]}, nil
	case "use":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: use <item>", errUsage)
		}
		return protocol.UseItem{ItemID: args[0]}, nil
	case "drop":
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("%w: drop <item> [quantity]", errUsage)
		}
		d := protocol.DropItem{ItemID: args[0]}
		if len(args) == 2 {
			q, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("%w: drop <item> [quantity]", errUsage)
			}
			d.Quantity = q
		}
		return d, nil
	case "pickup":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: pickup <item>", errUsage)
		}
		return protocol.PickUpItem{ItemID: args[0]}, nil
	case "say":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: say <text>", errUsage)
		}
		return protocol.Custom{Kind: "chat", Payload: map[string]any{"text": strings.Join(args, " ")}}, nil
	case "emit":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: emit <kind> [key=value ...]", errUsage)
		}
		payload := make(map[string]any, len(args)-1)
		for _, kv := range args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("%w: emit <kind> [key=value ...]", errUsage)
			}
			payload[k] = v
		}
		return protocol.Custom{Kind: args[0], Payload: payload}, nil
	}
	return nil, fmt.Errorf("unknown command %q", verb)
}

func twoInts(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, errUsage
	}
	a, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func (c *console) send(cmd protocol.Command) {
	out := c.out
	res, err := c.core.Send(cmd,
		connection.WithQueueIfOffline(true),
		connection.WithCallbacks(nil, func(err error) {
			fmt.Fprintf(out, "%s dropped: %v\n", cmd.CommandType(), err)
		}),
	)
	if err != nil {
		fmt.Fprintf(c.out, "%s %s: %v\n", cmd.CommandType(), res, err)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", cmd.CommandType(), res)
}

func (c *console) cmdConnect() {
	if _, err := c.core.Connect(); err != nil {
		fmt.Fprintf(c.out, "connect: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "connecting...")
}

func (c *console) cmdLogin(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: login <token>")
		return
	}
	if _, err := c.core.Login(args[0]); err != nil {
		fmt.Fprintf(c.out, "login: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "authenticating...")
}

func (c *console) cmdStatus() {
	r := c.core.Reconnection()
	q := c.core.QueueStats()

	fmt.Fprintf(c.out, "state:         %s\n", c.core.State())
	fmt.Fprintf(c.out, "endpoint:      %s\n", orDash(c.core.Endpoint()))
	fmt.Fprintf(c.out, "authenticated: %t\n", c.core.IsAuthenticated())
	fmt.Fprintf(c.out, "session:       %s\n", orDash(c.core.SessionID()))
	max := strconv.Itoa(r.MaxAttempts)
	if r.MaxAttempts < 0 {
		max = "unlimited"
	}
	fmt.Fprintf(c.out, "reconnect:     attempt %d/%s, delay %v, scheduled %t\n", r.Attempts, max, r.CurrentDelay, r.IsScheduled)
	fmt.Fprintf(c.out, "queue:         %d/%d (enqueued %d, flushed %d, evicted %d, cleared %d)\n",
		q.Len, q.Capacity, q.Enqueued, q.Flushed, q.Evicted, q.Cleared)
}

func (c *console) cmdMetrics() {
	m := c.core.Metrics()
	fmt.Fprintf(c.out, "sent:          %d\n", m.MessagesSent)
	fmt.Fprintf(c.out, "received:      %d\n", m.MessagesReceived)
	fmt.Fprintf(c.out, "errors:        %d\n", m.Errors)
	fmt.Fprintf(c.out, "reconnects:    %d attempted, %d succeeded\n", m.ReconnectAttempts, m.ReconnectSuccesses)
	fmt.Fprintf(c.out, "latency:       last %v, avg %v over %d samples\n",
		m.LastLatency.Round(time.Microsecond), m.AverageLatency.Round(time.Microsecond), m.LatencySamples)
	fmt.Fprintf(c.out, "queue size:    %d\n", m.QueueSize)
	if m.Connected() {
		fmt.Fprintf(c.out, "uptime:        %v\n", m.Uptime.Round(time.Second))
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  connect | c               open the connection
  disconnect | dc           close the connection, no reconnect
  login <token>             authenticate the open session
  move <dx> <dy>            move relative
  goto <x> <y>              move to a position
  act <target> <action>     act on a target
  use <item>                use an item
  drop <item> [quantity]    drop an item
  pickup <item>             pick up an item
  say <text>                chat
  emit <kind> [k=v ...]     send a custom command
  status | s                connection status
  metrics | m               connection metrics
  quit | q                  exit`)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
