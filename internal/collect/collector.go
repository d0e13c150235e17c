package collect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// Result contains the outcome of one collection pass.
type Result struct {
	Items     []core.RawItem // Everything collected this pass
	PerSource map[string]int // Item count per source tag
	Errors    []error        // Per-adapter failures (informational only)
}

// Collector fans out over registered adapters with bounded concurrency and
// joins the results best-effort: an adapter failure is captured and counted
// as zero items from that source.
type Collector struct {
	adapters       []Adapter
	maxConcurrency int
	timeout        time.Duration
	log            *slog.Logger
}

// NewCollector creates a collector over the given adapters.
func NewCollector(adapters []Adapter) *Collector {
	return &Collector{
		adapters:       adapters,
		maxConcurrency: 5,
		timeout:        5 * time.Minute,
		log:            logger.Get(),
	}
}

// Register adds an adapter. Not safe to call after CollectAll has started.
func (c *Collector) Register(adapter Adapter) {
	c.adapters = append(c.adapters, adapter)
}

// Sources returns the names of all registered adapters.
func (c *Collector) Sources() []string {
	names := make([]string, 0, len(c.adapters))
	for _, a := range c.adapters {
		names = append(names, a.Name())
	}
	return names
}

// CollectAll runs every adapter concurrently and joins the results. It always
// returns a usable Result; adapter errors are collected, logged, and never
// propagated as a run failure.
func (c *Collector) CollectAll(ctx context.Context) *Result {
	result := &Result{PerSource: make(map[string]int)}
	if len(c.adapters) == 0 {
		c.log.Warn("No collection adapters registered")
		return result
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	sem := make(chan struct{}, c.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, adapter := range c.adapters {
		wg.Add(1)
		sem <- struct{}{}

		go func(a Adapter) {
			defer wg.Done()
			defer func() { <-sem }()

			items, err := c.fetchOne(ctx, a)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("source %s: %w", a.Name(), err))
				result.PerSource[a.Name()] = 0
				return
			}
			result.Items = append(result.Items, items...)
			result.PerSource[a.Name()] = len(items)
		}(adapter)
	}

	wg.Wait()

	c.log.Info("Collection pass completed",
		"sources", len(c.adapters),
		"items", len(result.Items),
		"failures", len(result.Errors),
	)
	return result
}

// fetchOne runs a single adapter, converting panics into errors so one
// misbehaving source cannot take down the pass.
func (c *Collector) fetchOne(ctx context.Context, a Adapter) (items []core.RawItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()

	items, err = a.Fetch(ctx)
	if err != nil {
		c.log.Error("Adapter fetch failed", "source", a.Name(), "error", err)
		return nil, err
	}

	c.log.Debug("Adapter fetch completed", "source", a.Name(), "items", len(items))
	return items, nil
}
