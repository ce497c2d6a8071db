package query

import "context"

// Func adapts a typed fetch function.
func Func[T any](fn func(context.Context) (T, error)) FetchFunc {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Data extracts typed data from a snapshot. ok is false when the snapshot
// holds no data of type T.
func Data[T any](s Snapshot) (T, bool) {
	v, ok := s.Data.(T)
	return v, ok
}

// Get is Fetch with typed data.
func Get[T any](ctx context.Context, c *Client, key Key, fn func(context.Context) (T, error), opts Options) (T, error) {
	snap, err := c.Fetch(ctx, key, Func(fn), opts)
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := Data[T](snap)
	if !ok {
		var zero T
		return zero, nil
	}
	return v, nil
}
