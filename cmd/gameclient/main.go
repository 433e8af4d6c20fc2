// gameclient is an interactive console for a game server session.
// Usage: go run ./cmd/gameclient --config configs/gameclient.example.yaml
//
// With no config file, --url selects the server directly. The token is read
// from the auth section (literal, token_env or token_file).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/gamelink/internal/auth"
	"github.com/rickgao/gamelink/internal/config"
	"github.com/rickgao/gamelink/internal/connection"
	"github.com/rickgao/gamelink/internal/directory"
	"github.com/rickgao/gamelink/internal/metrics"
	"github.com/rickgao/gamelink/internal/protocol"
	"github.com/rickgao/gamelink/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	url := flag.String("url", "", "server websocket URL (overrides client.url)")
	autoConnect := flag.Bool("connect", true, "connect on start")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "game> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	logger := cfg.Logging.NewLogger(rl.Stderr())
	slog.SetDefault(logger)

	logger.Info("starting gameclient",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		rl.Close()
	}()

	creds, err := auth.Load(cfg.Auth)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	if cfg.Client.RequireAuth && creds.MustHave() != nil {
		logger.Warn("no token configured, use 'login <token>' once connected")
	} else if creds.Token != "" {
		logger.Info("using auth token", "source", creds.Source, "token", creds.Redacted())
	}

	codec, err := protocol.NewCodec(cfg.Client.Codec)
	if err != nil {
		logger.Error("invalid codec", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector(cfg.Client.LatencyWindow)
	opts := []connection.Option{
		connection.WithLogger(logger),
		connection.WithCodec(codec),
		connection.WithMetrics(collector),
	}

	if cfg.Client.URL == "" {
		svc, stop, err := startDirectory(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to start directory", "error", err)
			os.Exit(1)
		}
		defer stop()
		opts = append(opts, connection.WithDirectory(svc))
	}

	core, err := connection.New(cfg.Client.ToConnection(creds.Token), opts...)
	if err != nil {
		logger.Error("failed to create connection", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	printEvents(core, rl.Stdout())

	if cfg.Metrics.Enabled {
		srv := startMetricsServer(cfg.Metrics, core, collector, logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if *autoConnect {
		if _, err := core.Connect(); err != nil {
			logger.Error("connect failed", "error", err)
		}
	}

	con := &console{core: core, out: rl.Stdout()}
	con.printHelp()

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			break
		}
		if con.exec(line) {
			break
		}
	}

	fmt.Fprintln(rl.Stdout(), "Exiting...")
	logger.Info("gameclient stopped")
}

func loadConfig(path, url string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadWithDefaults(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if url != "" {
		cfg.Client.URL = url
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startDirectory opens the configured store, starts optional LAN discovery
// and background ranking, and returns the service plus a stop func.
func startDirectory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*directory.Service, func(), error) {
	store, closeStore, err := directory.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc := directory.NewServiceFromConfig(store, cfg.Directory, logger)

	dctx, dcancel := context.WithCancel(ctx)

	if cfg.Directory.MDNS.Enabled {
		browser := directory.NewLANBrowser(directory.LANConfig{
			Service: cfg.Directory.MDNS.Service,
			Domain:  cfg.Directory.MDNS.Domain,
		}, store, logger)
		// One short scan up front so the first Resolve sees LAN servers.
		if n, err := browser.Scan(dctx, cfg.Directory.MDNS.Timeout); err != nil {
			logger.Warn("lan scan failed", "error", err)
		} else {
			logger.Info("lan scan complete", "found", n)
		}
		go func() {
			if _, err := browser.Browse(dctx); err != nil {
				logger.Warn("lan browsing stopped", "error", err)
			}
		}()
	}

	var refresher *directory.Refresher
	if cfg.Directory.RefreshInterval > 0 {
		refresher = directory.NewRefresher(directory.RefresherConfig{
			Interval: cfg.Directory.RefreshInterval,
			Timeout:  cfg.Directory.ProbeTimeout * 2,
		}, svc, nil, logger)
		refresher.Start(dctx)
	}

	stop := func() {
		dcancel()
		if refresher != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			refresher.Stop(stopCtx)
			stopCancel()
		}
		closeStore()
	}
	return svc, stop, nil
}

// printEvents writes a one-line summary of each core event.
func printEvents(core *connection.Core, w io.Writer) {
	core.OnConnected(func(e connection.ConnectedEvent) {
		fmt.Fprintf(w, "* connected to %s\n", e.Endpoint)
	})
	core.OnDisconnected(func(e connection.DisconnectedEvent) {
		if e.Err != nil {
			fmt.Fprintf(w, "* disconnected (%s): %v\n", e.Reason, e.Err)
			return
		}
		fmt.Fprintf(w, "* disconnected (%s)\n", e.Reason)
	})
	core.OnReconnectAttempt(func(e connection.ReconnectAttemptEvent) {
		max := fmt.Sprint(e.MaxAttempts)
		if e.MaxAttempts < 0 {
			max = "unlimited"
		}
		fmt.Fprintf(w, "* reconnect attempt %d/%s in %v\n", e.Attempt, max, e.Delay)
	})
	core.OnAuthChange(func(e connection.AuthChangeEvent) {
		if e.Authenticated {
			fmt.Fprintf(w, "* authenticated (session %s)\n", core.SessionID())
			return
		}
		fmt.Fprintln(w, "* not authenticated")
	})
	core.OnError(func(e connection.ErrorEvent) {
		fmt.Fprintf(w, "! %v\n", e.Err)
	})
	core.OnMessage(func(e connection.MessageEvent) {
		fmt.Fprintf(w, "< %s\n", formatMessage(e.Message))
	})
}

func formatMessage(m protocol.Message) string {
	switch msg := m.(type) {
	case protocol.ErrorNotice:
		return fmt.Sprintf("error %s: %s", msg.Code, msg.Message)
	case protocol.ServerEvent:
		if len(msg.Payload) == 0 {
			return msg.Type
		}
		data, err := json.Marshal(msg.Payload)
		if err != nil {
			return msg.Type
		}
		return msg.Type + " " + string(data)
	default:
		return m.MessageType()
	}
}

// startMetricsServer serves Prometheus metrics and a JSON health check.
func startMetricsServer(cfg config.MetricsConfig, core *connection.Core, collector *metrics.Collector, logger *slog.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewExporter(collector, prometheus.Labels{"client": version.Product}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", healthHandler(core))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("starting metrics server", "port", cfg.Port, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

func healthHandler(core *connection.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := core.State()
		health := struct {
			Status        string `json:"status"`
			State         string `json:"state"`
			Endpoint      string `json:"endpoint,omitempty"`
			Authenticated bool   `json:"authenticated"`
			Queued        int    `json:"queued"`
		}{
			Status:        "healthy",
			State:         state.String(),
			Endpoint:      core.Endpoint(),
			Authenticated: core.IsAuthenticated(),
			Queued:        core.QueueStats().Len,
		}

		switch state {
		case connection.StateReady:
		case connection.StateClosed:
			health.Status = "unhealthy"
		default:
			health.Status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}
