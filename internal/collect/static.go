package collect

import (
	"context"

	"newsroom/internal/core"
)

// StaticAdapter serves a fixed item set. Used in tests and local dry runs.
type StaticAdapter struct {
	name  string
	items []core.RawItem
	err   error
}

// NewStaticAdapter creates an adapter that always returns the given items.
func NewStaticAdapter(name string, items []core.RawItem) *StaticAdapter {
	return &StaticAdapter{name: name, items: items}
}

// NewFailingAdapter creates an adapter that always fails with err.
func NewFailingAdapter(name string, err error) *StaticAdapter {
	return &StaticAdapter{name: name, err: err}
}

// Name returns the source tag.
func (a *StaticAdapter) Name() string {
	return a.name
}

// Fetch returns the configured items, stamped with the adapter's source tag.
func (a *StaticAdapter) Fetch(ctx context.Context) ([]core.RawItem, error) {
	if a.err != nil {
		return nil, a.err
	}
	out := make([]core.RawItem, len(a.items))
	copy(out, a.items)
	for i := range out {
		if out[i].Source == "" {
			out[i].Source = a.name
		}
	}
	return out, nil
}
