package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnouncementEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		a      Announcement
		want   Endpoint
		wantOK bool
	}{
		{
			name: "address preferred over host",
			a: Announcement{
				Instance: "Basement Box",
				Host:     "box.local.",
				Port:     7777,
				Addrs:    []string{"192.168.1.20"},
				Text:     []string{"path=play", "region=home", "tags=casual, coop", "priority=4"},
			},
			want: Endpoint{
				ID:       "lan:Basement Box",
				Name:     "Basement Box",
				URL:      "ws://192.168.1.20:7777/play",
				Region:   "home",
				Tags:     []string{"casual", "coop", "lan"},
				Priority: 4,
			},
			wantOK: true,
		},
		{
			name: "host name and wss",
			a: Announcement{
				Instance: "attic",
				Host:     "attic.local.",
				Port:     443,
				Text:     []string{"scheme=wss", "name=Attic Server"},
			},
			want: Endpoint{
				ID:   "lan:attic",
				Name: "Attic Server",
				URL:  "wss://attic.local:443/",
				Tags: []string{"lan"},
			},
			wantOK: true,
		},
		{
			name: "ipv6 address",
			a:    Announcement{Instance: "v6", Port: 9000, Addrs: []string{"fe80::1"}},
			want: Endpoint{
				ID:   "lan:v6",
				Name: "v6",
				URL:  "ws://[fe80::1]:9000/",
				Tags: []string{"lan"},
			},
			wantOK: true,
		},
		{
			name: "no address",
			a:    Announcement{Instance: "ghost", Port: 9000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := announcementEndpoint(tt.a)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
				assert.NoError(t, got.Validate())
			}
		})
	}
}

func TestLANBrowser_MirrorsAnnouncements(t *testing.T) {
	store := NewMemoryStore()
	b := NewLANBrowser(LANConfig{}, store, nil)

	removedSeen := make(chan struct{})
	b.browse = func(ctx context.Context, found, gone chan<- Announcement) error {
		found <- Announcement{Instance: "one", Port: 7000, Addrs: []string{"10.0.0.1"}}
		found <- Announcement{Instance: "two", Port: 7000, Addrs: []string{"10.0.0.2"}}
		found <- Announcement{Instance: "nowhere"}
		gone <- Announcement{Instance: "one"}
		gone <- Announcement{Instance: "never-seen"}
		close(removedSeen)
		<-ctx.Done()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		n, err := b.Browse(ctx)
		assert.NoError(t, err)
		done <- n
	}()

	<-removedSeen
	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	assert.Equal(t, 2, <-done)
	e, err := store.Get(context.Background(), "lan:two")
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:7000/", e.URL)
}

func TestLANBrowser_BrowseError(t *testing.T) {
	b := NewLANBrowser(LANConfig{Service: "_custom._tcp"}, NewMemoryStore(), nil)
	boom := errors.New("no multicast interface")
	b.browse = func(context.Context, chan<- Announcement, chan<- Announcement) error {
		return boom
	}

	_, err := b.Scan(context.Background(), time.Second)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "_custom._tcp", b.cfg.Service)
	assert.Equal(t, DefaultLANDomain, b.cfg.Domain)
}

func TestLANBrowser_ScanStopsAtDeadline(t *testing.T) {
	b := NewLANBrowser(LANConfig{}, NewMemoryStore(), nil)
	b.browse = func(ctx context.Context, _, _ chan<- Announcement) error {
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	n, err := b.Scan(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), time.Second)
}
