package api

import "time"

// Server is a game server record as served by the directory.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Region    string    `json:"region,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServersResponse from GET /servers
type ServersResponse struct {
	Servers []Server `json:"servers"`
}

// SingleServerResponse from GET /servers/{id} and POST /servers
type SingleServerResponse struct {
	Server Server `json:"server"`
}

// ListServersOptions configures a ListServers request.
type ListServersOptions struct {
	Region string
	Tag    string
}
