package directory

import (
	"context"
	"errors"

	"github.com/rickgao/gamelink/internal/api"
)

// RemoteStore proxies a directory service over REST.
type RemoteStore struct {
	client *api.Client
}

// NewRemoteStore wraps an API client.
func NewRemoteStore(client *api.Client) *RemoteStore {
	return &RemoteStore{client: client}
}

func (s *RemoteStore) List(ctx context.Context, f Filter) ([]Endpoint, error) {
	servers, err := s.client.ListServers(ctx, api.ListServersOptions{Region: f.Region, Tag: f.Tag})
	if err != nil {
		return nil, err
	}
	eps := make([]Endpoint, 0, len(servers))
	for _, srv := range servers {
		eps = append(eps, fromAPI(srv))
	}
	sortEndpoints(eps)
	return eps, nil
}

func (s *RemoteStore) Get(ctx context.Context, id string) (Endpoint, error) {
	srv, err := s.client.GetServer(ctx, id)
	if errors.Is(err, api.ErrNotFound) {
		return Endpoint{}, ErrNotFound
	}
	if err != nil {
		return Endpoint{}, err
	}
	return fromAPI(*srv), nil
}

func (s *RemoteStore) Put(ctx context.Context, e Endpoint) (Endpoint, error) {
	if err := e.Validate(); err != nil {
		return Endpoint{}, err
	}
	srv, err := s.client.CreateServer(ctx, toAPI(e))
	if err != nil {
		return Endpoint{}, err
	}
	return fromAPI(*srv), nil
}

func (s *RemoteStore) Delete(ctx context.Context, id string) error {
	err := s.client.DeleteServer(ctx, id)
	if errors.Is(err, api.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
