package directory

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Defaults for LAN discovery.
const (
	DefaultLANService = "_gamelink._tcp"
	DefaultLANDomain  = "local."
)

// Announcement is one mDNS service instance, decoupled from the zeroconf
// entry type.
type Announcement struct {
	Instance string
	Host     string
	Port     int
	Addrs    []string
	Text     []string
}

// LANConfig configures a LANBrowser.
type LANConfig struct {
	Service string
	Domain  string
}

type browseFunc func(ctx context.Context, found, gone chan<- Announcement) error

// LANBrowser watches mDNS for game servers and mirrors them into a Store.
// Announced endpoints get ids of the form "lan:<instance>".
//
// TXT keys understood: path, scheme (ws|wss), region, tags (comma
// separated), priority, name.
type LANBrowser struct {
	cfg    LANConfig
	store  Store
	logger *slog.Logger
	browse browseFunc
}

// NewLANBrowser creates a browser that writes into store.
func NewLANBrowser(cfg LANConfig, store Store, logger *slog.Logger) *LANBrowser {
	if cfg.Service == "" {
		cfg.Service = DefaultLANService
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultLANDomain
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &LANBrowser{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "lan", "service", cfg.Service),
	}
	b.browse = b.zeroconfBrowse
	return b
}

// Browse mirrors announcements into the store until ctx ends. It returns
// the number of endpoints upserted.
func (b *LANBrowser) Browse(ctx context.Context) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan Announcement)
	gone := make(chan Announcement)
	errc := make(chan error, 1)
	go func() {
		errc <- b.browse(ctx, found, gone)
	}()

	upserted := 0
	for {
		select {
		case a := <-found:
			e, ok := announcementEndpoint(a)
			if !ok {
				b.logger.Debug("ignoring announcement without address", "instance", a.Instance)
				continue
			}
			if _, err := b.store.Put(ctx, e); err != nil {
				b.logger.Warn("failed to store lan endpoint", "instance", a.Instance, "error", err)
				continue
			}
			upserted++
			b.logger.Info("lan server found", "instance", a.Instance, "url", e.URL)

		case a := <-gone:
			err := b.store.Delete(ctx, lanID(a.Instance))
			if err != nil && !errors.Is(err, ErrNotFound) {
				b.logger.Warn("failed to remove lan endpoint", "instance", a.Instance, "error", err)
				continue
			}
			b.logger.Info("lan server gone", "instance", a.Instance)

		case err := <-errc:
			if err != nil && ctx.Err() == nil {
				return upserted, err
			}
			return upserted, nil

		case <-ctx.Done():
			return upserted, nil
		}
	}
}

// Scan browses for d and returns how many servers were found.
func (b *LANBrowser) Scan(ctx context.Context, d time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return b.Browse(ctx)
}

func (b *LANBrowser) zeroconfBrowse(ctx context.Context, found, gone chan<- Announcement) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				select {
				case found <- entryAnnouncement(e):
				case <-ctx.Done():
					return
				}
			case e, ok := <-removed:
				if !ok {
					continue
				}
				select {
				case gone <- entryAnnouncement(e):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Browse may return before ctx ends; results keep arriving until then.
	if err := zeroconf.Browse(ctx, b.cfg.Service, b.cfg.Domain, entries, removed); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func entryAnnouncement(e *zeroconf.ServiceEntry) Announcement {
	addrs := make([]string, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	for _, ip := range e.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return Announcement{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		Addrs:    addrs,
		Text:     e.Text,
	}
}

func lanID(instance string) string {
	return "lan:" + instance
}

// announcementEndpoint builds an endpoint, preferring the first address over
// the host name.
func announcementEndpoint(a Announcement) (Endpoint, bool) {
	host := strings.TrimSuffix(a.Host, ".")
	if len(a.Addrs) > 0 {
		host = a.Addrs[0]
	}
	if host == "" || a.Port <= 0 {
		return Endpoint{}, false
	}

	txt := parseTXT(a.Text)

	scheme := "ws"
	if txt["scheme"] == "wss" {
		scheme = "wss"
	}
	path := txt["path"]
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(a.Port)), Path: path}

	e := Endpoint{
		ID:     lanID(a.Instance),
		Name:   a.Instance,
		URL:    u.String(),
		Region: txt["region"],
	}
	if name := txt["name"]; name != "" {
		e.Name = name
	}
	if tags := txt["tags"]; tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				e.Tags = append(e.Tags, t)
			}
		}
	}
	if p, err := strconv.Atoi(txt["priority"]); err == nil {
		e.Priority = p
	}
	e.Tags = append(e.Tags, "lan")
	return e, true
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k != "" {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}
