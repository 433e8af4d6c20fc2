package directory

import "context"

// Store persists endpoints. Get and Delete return ErrNotFound for unknown ids.
// Put assigns an id when the endpoint has none and returns the stored record.
type Store interface {
	List(ctx context.Context, f Filter) ([]Endpoint, error)
	Get(ctx context.Context, id string) (Endpoint, error)
	Put(ctx context.Context, e Endpoint) (Endpoint, error)
	Delete(ctx context.Context, id string) error
}

// batchPutter is implemented by stores that can write many endpoints in one
// round trip.
type batchPutter interface {
	PutMany(ctx context.Context, eps []Endpoint) (int, error)
}

// Seed writes eps into store, using a batch when the store supports one.
func Seed(ctx context.Context, store Store, eps []Endpoint) (int, error) {
	for _, e := range eps {
		if err := e.Validate(); err != nil {
			return 0, err
		}
	}
	if bp, ok := store.(batchPutter); ok {
		return bp.PutMany(ctx, eps)
	}
	n := 0
	for _, e := range eps {
		if _, err := store.Put(ctx, e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
