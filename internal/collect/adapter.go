// Package collect provides the collection adapter interface and a best-effort
// concurrent collector that fans out over all registered adapters.
package collect

import (
	"context"

	"newsroom/internal/core"
)

// Adapter is one external source of raw items. Implementations must absorb
// partial failures internally where possible; a returned error isolates the
// adapter for the run but never fails the overall collection.
type Adapter interface {
	// Name returns the source tag stamped onto collected items.
	Name() string

	// Fetch retrieves the currently available items from the source.
	Fetch(ctx context.Context) ([]core.RawItem, error)
}
